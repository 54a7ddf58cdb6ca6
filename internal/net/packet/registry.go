package packet

import (
	"fmt"

	"go.uber.org/zap"
)

// SessionState represents the session's current protocol phase.
type SessionState int

const (
	StateHandshake     SessionState = iota
	StateAuthenticated              // logged in, awaiting world entry
	StateInWorld                    // playing
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateHandshake:
		return "Handshake"
	case StateAuthenticated:
		return "Authenticated"
	case StateInWorld:
		return "InWorld"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// HandlerFunc is the callback signature for packet handlers.
// The session pointer is passed as an opaque interface to avoid import cycles.
type HandlerFunc func(sess any, r *Reader)

type handlerEntry struct {
	fn            HandlerFunc
	allowedStates map[SessionState]bool
}

// Registry maps primary opcodes to handlers with state-based access control.
// Registration happens once at startup; a duplicate opcode is a wiring error
// and panics immediately rather than silently replacing a handler.
type Registry struct {
	handlers map[byte]*handlerEntry
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[byte]*handlerEntry),
		log:      log,
	}
}

// Register maps an opcode to a handler, restricted to the given session states.
func (reg *Registry) Register(opcode byte, states []SessionState, fn HandlerFunc) {
	if _, exists := reg.handlers[opcode]; exists {
		panic(fmt.Sprintf("packet: duplicate handler for opcode %d", opcode))
	}
	allowed := make(map[SessionState]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	reg.handlers[opcode] = &handlerEntry{
		fn:            fn,
		allowedStates: allowed,
	}
}

// Dispatch finds the handler for the opcode in data[0], validates the session
// state, and calls the handler. Returns an error if the session state is not
// allowed; unknown opcodes are logged and dropped.
func (reg *Registry) Dispatch(sess any, state SessionState, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty packet")
	}
	opcode := data[0]
	reg.log.Debug("收到封包",
		zap.Uint8("opcode", opcode),
		zap.Int("size", len(data)),
		zap.String("state", state.String()),
	)

	entry, ok := reg.handlers[opcode]
	if !ok {
		reg.log.Warn("未知操作碼", zap.Uint8("opcode", opcode), zap.String("state", state.String()))
		return nil // drop, no reply
	}

	if !entry.allowedStates[state] {
		reg.log.Warn("操作碼在此狀態下不允許",
			zap.Uint8("opcode", opcode),
			zap.String("state", state.String()),
		)
		return fmt.Errorf("opcode %d not allowed in state %s", opcode, state)
	}

	r := NewReader(data)
	if err := reg.safeCall(entry.fn, sess, r, opcode); err != nil {
		return err
	}
	if r.Truncated() {
		reg.log.Warn("封包欄位不足",
			zap.Uint8("opcode", opcode),
			zap.Int("size", len(data)),
		)
	}
	return nil
}

// safeCall executes a handler with panic recovery so a single bad frame
// cannot take down the session goroutine, let alone the process.
func (reg *Registry) safeCall(fn HandlerFunc, sess any, r *Reader, opcode byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("處理器 panic 已恢復",
				zap.Uint8("opcode", opcode),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for opcode %d: %v", opcode, rec)
		}
	}()
	fn(sess, r)
	return nil
}

// ModeTable sub-dispatches a feature's mode byte to per-operation handlers.
// One primary opcode carries a whole feature's request surface; the mode
// byte inside the payload selects the operation. Duplicate modes panic at
// startup, unknown modes are logged and dropped.
type ModeTable struct {
	name  string
	modes map[byte]HandlerFunc
	log   *zap.Logger
}

func NewModeTable(name string, log *zap.Logger) *ModeTable {
	return &ModeTable{
		name:  name,
		modes: make(map[byte]HandlerFunc),
		log:   log,
	}
}

// On registers a handler for one mode value.
func (t *ModeTable) On(mode byte, fn HandlerFunc) *ModeTable {
	if _, exists := t.modes[mode]; exists {
		panic(fmt.Sprintf("packet: duplicate mode 0x%02X in %s table", mode, t.name))
	}
	t.modes[mode] = fn
	return t
}

// Dispatch reads the mode byte from r and invokes the registered handler.
// Unknown modes drop the frame with a warning, matching the primary
// dispatcher's policy.
func (t *ModeTable) Dispatch(sess any, r *Reader) {
	mode := r.ReadByte()
	fn, ok := t.modes[mode]
	if !ok {
		t.log.Warn("未知模式",
			zap.String("feature", t.name),
			zap.Uint8("mode", mode),
		)
		return
	}
	fn(sess, r)
}
