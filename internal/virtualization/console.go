package virtualization

import "github.com/five82/vapor-console/internal/state"

// ConsoleStatus is the lifecycle of a VNC or SPICE session.
type ConsoleStatus string

const (
	ConsoleConnecting   ConsoleStatus = "connecting"
	ConsoleConnected    ConsoleStatus = "connected"
	ConsoleDisconnected ConsoleStatus = "disconnected"
	ConsoleError        ConsoleStatus = "error"
)

// ConsoleConnection is an open console session for a VM.
type ConsoleConnection struct {
	VMID   string
	Status ConsoleStatus
	Type   string
	Token  string
	WSURL  string
}

// Consoles holds the open console sessions by VM id.
func (s *Service) Consoles() state.Readable[map[string]ConsoleConnection] { return s.consoles }

// SetConsole records or replaces the session for conn.VMID.
func (s *Service) SetConsole(conn ConsoleConnection) {
	s.consoles.Update(func(cur map[string]ConsoleConnection) map[string]ConsoleConnection {
		next := copyConsoles(cur)
		next[conn.VMID] = conn
		return next
	})
}

// SetConsoleStatus updates the status of an existing session.
func (s *Service) SetConsoleStatus(vmID string, status ConsoleStatus) {
	s.consoles.UpdateIf(func(cur map[string]ConsoleConnection) (map[string]ConsoleConnection, bool) {
		conn, ok := cur[vmID]
		if !ok || conn.Status == status {
			return cur, false
		}
		next := copyConsoles(cur)
		conn.Status = status
		next[vmID] = conn
		return next, true
	})
}

// CloseConsole forgets the session for vmID.
func (s *Service) CloseConsole(vmID string) {
	s.consoles.UpdateIf(func(cur map[string]ConsoleConnection) (map[string]ConsoleConnection, bool) {
		if _, ok := cur[vmID]; !ok {
			return cur, false
		}
		next := copyConsoles(cur)
		delete(next, vmID)
		return next, true
	})
}

func copyConsoles(cur map[string]ConsoleConnection) map[string]ConsoleConnection {
	next := make(map[string]ConsoleConnection, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	return next
}
