package intent

// Branch is the handling branch selected for a classified turn.
type Branch int

// The three handling branches. The router is total: every intent key maps
// to exactly one branch.
const (
	BranchChitChat Branch = iota
	BranchRetrieval
	BranchBusiness
)

// String implements fmt.Stringer for logging.
func (b Branch) String() string {
	switch b {
	case BranchChitChat:
		return "chit_chat"
	case BranchRetrieval:
		return "retrieval"
	case BranchBusiness:
		return "business"
	default:
		return "unknown"
	}
}

// Route maps an intent key to its handling branch:
//
//	"" or "chit_chat" -> chit-chat
//	"question"        -> retrieval
//	anything else     -> business
//
// Re-verify this table whenever new intent keys are introduced.
func Route(intentKey string) Branch {
	switch intentKey {
	case "", KeyChitChat:
		return BranchChitChat
	case KeyQuestion:
		return BranchRetrieval
	default:
		return BranchBusiness
	}
}
