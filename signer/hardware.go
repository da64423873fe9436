package signer

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
	"github.com/tetherto/wdk-wallet-evm/device"
	"github.com/tetherto/wdk-wallet-evm/internal/util"
	"github.com/tetherto/wdk-wallet-evm/txbuilder"
)

// sessionHandle shares one live device session between a signer and the
// children derived from it. The session closes when the last holder
// releases it, so disposing a child never pulls the session out from under
// its siblings.
type sessionHandle struct {
	mu      sync.Mutex
	session device.Session
	refs    int
}

func newSessionHandle() *sessionHandle {
	return &sessionHandle{refs: 1}
}

func (h *sessionHandle) current() device.Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.session
}

func (h *sessionHandle) set(session device.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.session = session
}

// drop clears the session only if it is still the given one, so a holder
// reporting a stale failure cannot discard a replacement already connected.
func (h *sessionHandle) drop(stale device.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.session == stale {
		h.session = nil
	}
}

func (h *sessionHandle) retain() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.refs++
}

// release drops one holder and closes the session best-effort when none
// remain.
func (h *sessionHandle) release(ctx context.Context) {
	h.mu.Lock()
	h.refs--
	last := h.refs == 0

	var session device.Session
	if last {
		session = h.session
		h.session = nil
	}
	h.mu.Unlock()

	if session == nil {
		return
	}

	if err := session.Close(ctx); err != nil {
		util.LogFromContext(ctx).Warn().Err(err).Msg("Failed to close device session")
	}
}

// HardwareSigner reproduces the signer contract on top of a remote hardware
// device session. No key material ever enters this process; every signature
// is produced on-device and confirmed there by the user.
//
// The signer keeps at most one live session, shared with derived children.
// Operations finding it disconnected run one discover-and-connect handshake
// before proceeding; a locked or busy device fails the operation immediately
// instead of blocking.
type HardwareSigner struct {
	transport device.Transport
	path      string
	index     uint32

	mu       sync.Mutex
	handle   *sessionHandle
	state    device.State
	addr     *common.Address
	disposed bool
}

// NewHardwareSigner creates a signer bound to one derivation path on a
// device reachable through the transport. No connection is made until the
// first operation needs one.
func NewHardwareSigner(transport device.Transport, path string) (*HardwareSigner, error) {
	full, index, err := qualifyPath(path)
	if err != nil {
		return nil, err
	}

	return &HardwareSigner{
		transport: transport,
		path:      full,
		index:     index,
		handle:    newSessionHandle(),
		state:     device.StateDisconnected,
	}, nil
}

// Derive returns a new signer for another path on the same device. The
// existing session is shared; no fresh physical connect is required, and the
// session stays open until the last holder disposes.
func (s *HardwareSigner) Derive(path string) (Signer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil, ErrSignerDisposed
	}

	full, index, err := qualifyPath(path)
	if err != nil {
		return nil, err
	}

	s.handle.retain()

	return &HardwareSigner{
		transport: s.transport,
		path:      full,
		index:     index,
		handle:    s.handle,
		state:     s.state,
	}, nil
}

// Address resolves the address for this signer's path on-device. The result
// is cached after the first resolution.
func (s *HardwareSigner) Address(ctx context.Context) (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return common.Address{}, ErrSignerDisposed
	}

	if s.addr != nil {
		return *s.addr, nil
	}

	session, err := s.ensureReady(ctx)
	if err != nil {
		return common.Address{}, err
	}

	action, err := session.GetAddress(ctx, s.path)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to start address resolution")
	}

	payload, err := device.Await(ctx, action)
	if err != nil {
		return common.Address{}, err
	}

	if len(payload) != common.AddressLength {
		return common.Address{}, errors.Errorf("device returned %d address bytes", len(payload))
	}

	addr := common.BytesToAddress(payload)
	s.addr = &addr

	return addr, nil
}

// SignMessage signs an EIP-191 personal message on-device.
func (s *HardwareSigner) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.ensureReady(ctx)
	if err != nil {
		return nil, err
	}

	action, err := session.SignMessage(ctx, s.path, message)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start message signing")
	}

	return awaitSignature(ctx, action)
}

// SignTransaction signs a populated transaction on-device and returns the
// serialized signed transaction produced by the device.
func (s *HardwareSigner) SignTransaction(ctx context.Context, tx *txbuilder.UnsignedTx) ([]byte, error) {
	if tx == nil || tx.Tx == nil {
		return nil, errors.New("unsigned transaction is required")
	}

	raw, err := tx.Tx.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize unsigned transaction")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.ensureReady(ctx)
	if err != nil {
		return nil, err
	}

	action, err := session.SignTransaction(ctx, s.path, raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start transaction signing")
	}

	return device.Await(ctx, action)
}

// SignTypedData signs EIP-712 typed data on-device.
func (s *HardwareSigner) SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error) {
	encoded, err := json.Marshal(typedData)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode typed data")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.ensureReady(ctx)
	if err != nil {
		return nil, err
	}

	action, err := session.SignTypedData(ctx, s.path, encoded)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start typed data signing")
	}

	return awaitSignature(ctx, action)
}

// Dispose releases this signer's hold on the shared session; the last
// holder closes it best-effort. The signer is always marked inactive, even
// if the close call fails. Idempotent.
func (s *HardwareSigner) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil
	}

	s.handle.release(context.Background())

	s.addr = nil
	s.state = device.StateDisconnected
	s.disposed = true

	return nil
}

// Active reports whether the signer has not been disposed.
func (s *HardwareSigner) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return !s.disposed
}

// Path returns the full derivation path this signer is bound to.
func (s *HardwareSigner) Path() string {
	return s.path
}

// Index returns the account index of the bound path.
func (s *HardwareSigner) Index() uint32 {
	return s.index
}

// State returns the current connection state.
func (s *HardwareSigner) State() device.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// ensureReady brings the session to the ready state: a disconnected signer
// gets exactly one discover-and-connect attempt, and a locked or busy device
// fails the operation immediately. Callers hold s.mu.
func (s *HardwareSigner) ensureReady(ctx context.Context) (device.Session, error) {
	if s.disposed {
		return nil, ErrSignerDisposed
	}

	session := s.handle.current()
	if session == nil {
		connected, err := s.connect(ctx)
		if err != nil {
			return nil, err
		}

		session = connected
	}

	status, err := session.Status(ctx)
	if err != nil {
		s.handle.drop(session)
		s.state = device.StateDisconnected

		return nil, errors.Wrap(err, "device status poll failed")
	}

	s.state = device.StateReady

	switch status {
	case device.StatusLocked:
		return nil, device.ErrDeviceLocked
	case device.StatusBusy:
		return nil, device.ErrDeviceBusy
	case device.StatusReady:
	}

	return session, nil
}

// connect runs the discover-and-connect handshake once. Callers hold s.mu.
func (s *HardwareSigner) connect(ctx context.Context) (device.Session, error) {
	logger := util.LogFromContext(ctx).With().Str("component", "hardware_signer").Str("path", s.path).Logger()

	s.state = device.StateConnecting
	logger.Debug().Msg("Connecting to device")

	infos, err := s.transport.Discover(ctx)
	if err != nil {
		s.state = device.StateDisconnected

		return nil, errors.Wrap(err, "device discovery failed")
	}

	if len(infos) == 0 {
		s.state = device.StateDisconnected

		return nil, device.ErrNoDeviceFound
	}

	session, err := s.transport.Connect(ctx, infos[0])
	if err != nil {
		s.state = device.StateDisconnected

		return nil, errors.Wrapf(err, "failed to connect to device %q", infos[0].ID)
	}

	s.handle.set(session)
	s.state = device.StateReady
	logger.Debug().Str("session_id", session.ID().String()).Str("model", infos[0].Model).Msg("Device session established")

	return session, nil
}

func awaitSignature(ctx context.Context, action device.Action) ([]byte, error) {
	payload, err := device.Await(ctx, action)
	if err != nil {
		return nil, err
	}

	if len(payload) != 65 {
		return nil, errors.Errorf("device returned %d signature bytes", len(payload))
	}

	return payload, nil
}
