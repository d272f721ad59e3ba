package resource

// Phase 是资源操作的显式状态，避免多个布尔值组合出非法状态。
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseSubmitting
	PhaseError
	PhaseSuccess
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseSubmitting:
		return "submitting"
	case PhaseError:
		return "error"
	case PhaseSuccess:
		return "success"
	default:
		return "idle"
	}
}

// State 是带消息的状态标签。Err 只在 PhaseError 时非空。
type State struct {
	Phase   Phase
	Message string
	Err     error
}

// Busy 报告是否有请求在进行，界面据此禁用提交。
func (s State) Busy() bool {
	return s.Phase == PhaseLoading || s.Phase == PhaseSubmitting
}

// Snapshot 是 Store 在某一时刻的只读视图。
type Snapshot struct {
	Items []Record
	State State
	// Revision 每次应用变更后递增
	Revision uint64
	// Issued 是最近一次成功拉取发出时的 Revision
	Issued uint64
	// Fetched 表示至少完成过一次拉取（成功或失败）
	Fetched bool
	// Loaded 表示最近一次拉取成功，Items 反映服务端的列表
	Loaded bool
}
