package provisioner

// State is a step of one provisioning attempt
type State int

const (
	StateInit State = iota
	StateSystemAuthenticated
	StateUserAuthenticated
	StateFolderEnsured
	StateFileTransferred
	StateShareCreated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSystemAuthenticated:
		return "system_authenticated"
	case StateUserAuthenticated:
		return "user_authenticated"
	case StateFolderEnsured:
		return "folder_ensured"
	case StateFileTransferred:
		return "file_transferred"
	case StateShareCreated:
		return "share_created"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
