package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/stationmind/stationmind/internal/intent"
)

// Classifier labels user input with an intent using structured model
// output. When the model call fails it degrades to the deterministic
// rule classifier so a turn never dies on classification.
type Classifier struct {
	client  *Client
	intents *intent.Map
	rules   *intent.Rules
	system  string
	logger  *slog.Logger
}

// NewClassifier builds a Classifier over client for the given intent map.
func NewClassifier(client *Client, intents *intent.Map, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		client:  client,
		intents: intents,
		rules:   intent.NewRules(intents),
		system:  classifierSystemPrompt(intents),
		logger:  logger,
	}
}

// Classify implements intent.Classifier.
func (c *Classifier) Classify(ctx context.Context, text string) (*intent.Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, intent.ErrEmptyInput
	}

	var result intent.Result
	opts := []ai.GenerateOption{
		ai.WithModelName(c.client.modelName),
		ai.WithSystem(c.system),
		ai.WithMessages(ai.NewUserMessage(ai.NewTextPart(text))),
		ai.WithOutputType(intent.Result{}),
	}
	if err := c.client.generateStructured(ctx, opts, &result); err != nil {
		c.logger.Warn("model classification failed, using rule classifier",
			"error", err,
		)
		return c.rules.Classify(ctx, text)
	}

	result.Normalize()
	if err := result.Validate(); err != nil {
		c.logger.Warn("model returned invalid classification, using rule classifier",
			"error", err,
		)
		return c.rules.Classify(ctx, text)
	}
	return &result, nil
}

// classifierSystemPrompt renders the classification instructions with the
// configured business phrases inlined. Priority order matters: business
// phrase matches beat the question heuristic, which beats chit-chat.
func classifierSystemPrompt(intents *intent.Map) string {
	var b strings.Builder
	b.WriteString("你是一个意图识别助手。根据用户输入判断其意图，并输出结构化结果。\n\n")
	b.WriteString("已知业务意图短语：\n")
	phrases := intents.Phrases()
	keys := make([]string, 0, len(phrases))
	for phrase := range phrases {
		keys = append(keys, phrase)
	}
	sort.Strings(keys)
	for _, phrase := range keys {
		fmt.Fprintf(&b, "- %q -> %s\n", phrase, phrases[phrase])
	}
	b.WriteString(`
判断规则，按优先级从高到低：
1. 如果用户输入与某个业务意图短语相同或相互包含，返回该业务意图的 key，置信度 0.8 以上。
   例如"设备显示008通信故障怎么处理？"包含"通信故障怎么处理"，应返回对应的业务 key。
2. 否则，如果输入是一个提问（以问号结尾，或含有"是什么"、"怎么"、"如何"、"为什么"等疑问词），返回 "question"。
   例如"Autel Europe UK Ltd的电话是什么？"应返回 "question"。
3. 其余情况返回 "chit_chat"。
   例如"今天天气怎么样"、"你好"应返回 "chit_chat"。

intent_name 填意图的自然语言名称，intent_key 填上述 key，confidence 为 0 到 1 的小数，reason 简述判断依据。`)
	return b.String()
}
