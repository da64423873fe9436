package signer_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetherto/wdk-wallet-evm/device"
	"github.com/tetherto/wdk-wallet-evm/internal/util"
	"github.com/tetherto/wdk-wallet-evm/signer"
)

// fakeSession is a scripted device session.
type fakeSession struct {
	id        uuid.UUID
	statuses  []device.Status // consumed per Status call; last value repeats
	statusErr error

	addressPayload []byte
	signPayload    []byte
	actionErr      error
	stopped        bool

	statusCalls int
	closeCalls  int
	closeErr    error
}

func (f *fakeSession) ID() uuid.UUID {
	return f.id
}

func (f *fakeSession) Status(_ context.Context) (device.Status, error) {
	f.statusCalls++

	if f.statusErr != nil {
		return 0, f.statusErr
	}

	if len(f.statuses) == 0 {
		return device.StatusReady, nil
	}

	status := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}

	return status, nil
}

func (f *fakeSession) action(payload []byte) (device.Action, error) {
	if f.stopped {
		return device.StoppedAction(), nil
	}
	if f.actionErr != nil {
		return device.FailedAction(f.actionErr), nil
	}

	return device.CompletedAction(payload), nil
}

func (f *fakeSession) GetAddress(_ context.Context, _ string) (device.Action, error) {
	return f.action(f.addressPayload)
}

func (f *fakeSession) SignMessage(_ context.Context, _ string, _ []byte) (device.Action, error) {
	return f.action(f.signPayload)
}

func (f *fakeSession) SignTransaction(_ context.Context, _ string, _ []byte) (device.Action, error) {
	return f.action(f.signPayload)
}

func (f *fakeSession) SignTypedData(_ context.Context, _ string, _ []byte) (device.Action, error) {
	return f.action(f.signPayload)
}

func (f *fakeSession) Close(_ context.Context) error {
	f.closeCalls++

	return f.closeErr
}

// fakeTransport hands out one scripted session.
type fakeTransport struct {
	session     *fakeSession
	discoverErr error
	connectErr  error
	noDevices   bool

	discoverCalls int
	connectCalls  int
}

func (f *fakeTransport) Discover(_ context.Context) ([]device.Info, error) {
	f.discoverCalls++

	if f.discoverErr != nil {
		return nil, f.discoverErr
	}
	if f.noDevices {
		return nil, nil
	}

	return []device.Info{{ID: "usb-0", Model: "signer-one"}}, nil
}

func (f *fakeTransport) Connect(_ context.Context, _ device.Info) (device.Session, error) {
	f.connectCalls++

	if f.connectErr != nil {
		return nil, f.connectErr
	}

	return f.session, nil
}

var hardwareAddr = common.HexToAddress("0x9858EfFD232B4033E47d90003D41EC34EcaEda94")

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		session: &fakeSession{
			id:             uuid.New(),
			addressPayload: hardwareAddr.Bytes(),
			signPayload:    make([]byte, 65),
		},
	}
}

func TestHardwareSignerConnectsLazily(t *testing.T) {
	transport := newFakeTransport()

	s, err := signer.NewHardwareSigner(transport, "0'/0/0")
	require.NoError(t, err)
	assert.Equal(t, device.StateDisconnected, s.State())
	assert.Equal(t, "m/44'/60'/0'/0/0", s.Path())
	assert.Zero(t, transport.discoverCalls)

	addr, err := s.Address(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hardwareAddr, addr)
	assert.Equal(t, device.StateReady, s.State())
	assert.Equal(t, 1, transport.discoverCalls)
	assert.Equal(t, 1, transport.connectCalls)

	// Second call uses the cached address, no new handshake
	_, err = s.Address(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, transport.connectCalls)
}

func TestHardwareSignerReusesSessionAcrossOperations(t *testing.T) {
	transport := newFakeTransport()

	s, err := signer.NewHardwareSigner(transport, "0'/0/0")
	require.NoError(t, err)

	ctx := context.Background()

	_, err = s.SignMessage(ctx, []byte("one"))
	require.NoError(t, err)
	_, err = s.SignMessage(ctx, []byte("two"))
	require.NoError(t, err)

	assert.Equal(t, 1, transport.connectCalls)
	assert.Equal(t, 2, transport.session.statusCalls)
}

func TestHardwareSignerLockedAndBusy(t *testing.T) {
	transport := newFakeTransport()
	transport.session.statuses = []device.Status{device.StatusLocked, device.StatusBusy, device.StatusReady}

	s, err := signer.NewHardwareSigner(transport, "0'/0/0")
	require.NoError(t, err)

	ctx := context.Background()

	_, err = s.SignMessage(ctx, []byte("x"))
	require.ErrorIs(t, err, device.ErrDeviceLocked)

	_, err = s.SignMessage(ctx, []byte("x"))
	require.ErrorIs(t, err, device.ErrDeviceBusy)

	// No retry loop: each failure surfaced immediately, then a ready device
	// serves the next call on the same session
	_, err = s.SignMessage(ctx, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, transport.connectCalls)
}

func TestHardwareSignerDiscoveryFailures(t *testing.T) {
	transport := newFakeTransport()
	transport.noDevices = true

	s, err := signer.NewHardwareSigner(transport, "0'/0/0")
	require.NoError(t, err)

	_, err = s.Address(context.Background())
	require.ErrorIs(t, err, device.ErrNoDeviceFound)
	assert.Equal(t, device.StateDisconnected, s.State())

	cause := errors.New("usb enumeration failed")
	transport.noDevices = false
	transport.discoverErr = cause

	_, err = s.Address(context.Background())
	require.ErrorIs(t, err, cause)
}

func TestHardwareSignerReconnectsAfterStatusFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.session.statusErr = errors.New("session dropped")

	s, err := signer.NewHardwareSigner(transport, "0'/0/0")
	require.NoError(t, err)

	ctx := context.Background()

	_, err = s.SignMessage(ctx, []byte("x"))
	require.Error(t, err)
	assert.Equal(t, device.StateDisconnected, s.State())

	// The next operation runs one fresh discover-and-connect handshake
	transport.session.statusErr = nil

	_, err = s.SignMessage(ctx, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 2, transport.connectCalls)
}

func TestHardwareSignerActionOutcomes(t *testing.T) {
	transport := newFakeTransport()

	s, err := signer.NewHardwareSigner(transport, "0'/0/0")
	require.NoError(t, err)

	ctx := context.Background()

	transport.session.stopped = true
	_, err = s.SignMessage(ctx, []byte("x"))
	require.ErrorIs(t, err, device.ErrActionStopped)
	assert.NotErrorIs(t, err, device.ErrActionFailed)

	transport.session.stopped = false
	transport.session.actionErr = errors.New("user rejected on screen")
	_, err = s.SignMessage(ctx, []byte("x"))
	require.ErrorIs(t, err, device.ErrActionFailed)
	assert.Contains(t, err.Error(), "user rejected on screen")
}

func TestHardwareSignerSignTransaction(t *testing.T) {
	transport := newFakeTransport()
	transport.session.signPayload = []byte{0x02, 0xf8, 0x01} // opaque device output

	s, err := signer.NewHardwareSigner(transport, "0'/0/0")
	require.NoError(t, err)

	raw, err := s.SignTransaction(context.Background(), testUnsignedTx(1))
	require.NoError(t, err)
	assert.Equal(t, transport.session.signPayload, raw)
}

func TestHardwareSignerSignTypedData(t *testing.T) {
	transport := newFakeTransport()

	s, err := signer.NewHardwareSigner(transport, "0'/0/0")
	require.NoError(t, err)

	sig, err := s.SignTypedData(context.Background(), testTypedData())
	require.NoError(t, err)
	assert.Len(t, sig, 65)
}

func TestHardwareSignerDeriveReusesSession(t *testing.T) {
	transport := newFakeTransport()

	s, err := signer.NewHardwareSigner(transport, "0'/0/0")
	require.NoError(t, err)

	// Establish the session through the parent
	_, err = s.Address(context.Background())
	require.NoError(t, err)

	child, err := s.Derive("0'/0/1")
	require.NoError(t, err)
	assert.Equal(t, "m/44'/60'/0'/0/1", child.Path())
	assert.Equal(t, uint32(1), child.Index())

	// The child signs without a new physical connect
	_, err = child.SignMessage(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, transport.connectCalls)
}

func TestHardwareSignerChildDisposeLeavesParentSession(t *testing.T) {
	transport := newFakeTransport()

	parent, err := signer.NewHardwareSigner(transport, "0'/0/0")
	require.NoError(t, err)

	ctx := context.Background()

	_, err = parent.Address(ctx)
	require.NoError(t, err)

	child, err := parent.Derive("0'/0/1")
	require.NoError(t, err)

	_, err = child.SignMessage(ctx, []byte("x"))
	require.NoError(t, err)

	// Disposing the child must not close the session the parent still holds
	require.NoError(t, child.Dispose())
	assert.Zero(t, transport.session.closeCalls)

	_, err = parent.SignMessage(ctx, []byte("y"))
	require.NoError(t, err)
	assert.Equal(t, 1, transport.connectCalls)

	// The last holder closes it
	require.NoError(t, parent.Dispose())
	assert.Equal(t, 1, transport.session.closeCalls)
}

func TestHardwareSignerAddressRejectedAfterDisposeDespiteCache(t *testing.T) {
	transport := newFakeTransport()

	s, err := signer.NewHardwareSigner(transport, "0'/0/0")
	require.NoError(t, err)

	ctx := context.Background()

	// Prime the address cache, then dispose
	addr, err := s.Address(ctx)
	require.NoError(t, err)
	assert.Equal(t, hardwareAddr, addr)
	require.NoError(t, s.Dispose())

	_, err = s.Address(ctx)
	require.ErrorIs(t, err, signer.ErrSignerDisposed)
}

func TestHardwareSignerLogsThroughContext(t *testing.T) {
	transport := newFakeTransport()

	s, err := signer.NewHardwareSigner(transport, "0'/0/0")
	require.NoError(t, err)

	var buf bytes.Buffer
	ctx := util.WithLogger(context.Background(), zerolog.New(&buf))

	_, err = s.Address(ctx)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "Device session established")
	assert.Contains(t, buf.String(), "m/44'/60'/0'/0/0")
}

func TestHardwareSignerDispose(t *testing.T) {
	transport := newFakeTransport()

	s, err := signer.NewHardwareSigner(transport, "0'/0/0")
	require.NoError(t, err)

	_, err = s.Address(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Dispose())
	assert.False(t, s.Active())
	assert.Equal(t, 1, transport.session.closeCalls)

	ctx := context.Background()

	_, err = s.Address(ctx)
	require.ErrorIs(t, err, signer.ErrSignerDisposed)
	_, err = s.SignMessage(ctx, []byte("x"))
	require.ErrorIs(t, err, signer.ErrSignerDisposed)
	_, err = s.Derive("0'/0/1")
	require.ErrorIs(t, err, signer.ErrSignerDisposed)

	// Repeated dispose does not close again
	require.NoError(t, s.Dispose())
	assert.Equal(t, 1, transport.session.closeCalls)
}

func TestHardwareSignerDisposeSurvivesCloseFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.session.closeErr = errors.New("device unplugged")

	s, err := signer.NewHardwareSigner(transport, "0'/0/0")
	require.NoError(t, err)

	_, err = s.Address(context.Background())
	require.NoError(t, err)

	// Best-effort close: the signer is marked inactive regardless
	require.NoError(t, s.Dispose())
	assert.False(t, s.Active())
}

func TestHardwareSignerRejectsBadPayloads(t *testing.T) {
	transport := newFakeTransport()
	transport.session.addressPayload = []byte{0x01, 0x02}
	transport.session.signPayload = []byte{0x01}

	s, err := signer.NewHardwareSigner(transport, "0'/0/0")
	require.NoError(t, err)

	ctx := context.Background()

	_, err = s.Address(ctx)
	require.Error(t, err)

	_, err = s.SignMessage(ctx, []byte("x"))
	require.Error(t, err)
}
