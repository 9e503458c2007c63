// Package registration drives the startup registration workflow:
// connect → form → confirming → success | error.
package registration

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"verdant/pkg/chain"
)

type Step string

const (
	StepConnect    Step = "connect"
	StepForm       Step = "form"
	StepConfirming Step = "confirming"
	StepSuccess    Step = "success"
	StepError      Step = "error"
)

var (
	ErrBusy         = errors.New("a registration is already in progress")
	ErrNameRequired = errors.New("startup name is required")
	ErrNotConnected = &chain.Error{Kind: chain.KindEnvironmentNotReady, Message: "connect a wallet before registering"}
	ErrNoRetry      = errors.New("nothing to retry")
	ErrFormClosed   = errors.New("registration form is not open")
)

type State struct {
	Step    Step
	Account common.Address
	// Name survives a failed submission so a retry can reuse it.
	Name string
	// TxHash is set once the wallet accepts the transaction, while the flow
	// is still confirming.
	TxHash common.Hash
	Result *chain.Registration
	Err    error
}

type Flow struct {
	client *chain.Client
	logger zerolog.Logger

	mu        sync.Mutex
	state     State
	busy      bool
	completed int
}

func NewFlow(client *chain.Client, logger zerolog.Logger) *Flow {
	return &Flow{
		client: client,
		logger: logger,
		state:  State{Step: StepConnect},
	}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Completed counts successful registrations in this flow.
func (f *Flow) Completed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

// Init moves straight to the form when the wallet already authorized an
// account. It never prompts.
func (f *Flow) Init(ctx context.Context) error {
	account, ok, err := f.client.ConnectedAccount(ctx)
	if err != nil {
		return err
	}
	if ok {
		f.mu.Lock()
		if f.state.Step == StepConnect {
			f.transition(StepForm)
		}
		f.state.Account = account
		f.mu.Unlock()
	}
	return nil
}

// Connect puts the wallet on the configured chain and then asks for an
// account.
func (f *Flow) Connect(ctx context.Context) error {
	account, err := f.connect(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.state.Err = err
		return err
	}
	f.state.Account = account
	f.state.Err = nil
	if f.state.Step == StepConnect {
		f.transition(StepForm)
	}
	return nil
}

func (f *Flow) connect(ctx context.Context) (common.Address, error) {
	if err := f.client.EnsureNetwork(ctx); err != nil {
		return common.Address{}, err
	}
	return f.client.ConnectWallet(ctx)
}

// Submit registers name. Before a wallet is connected it fails with
// KindEnvironmentNotReady without touching the wallet. Only one submission
// runs at a time.
func (f *Flow) Submit(ctx context.Context, name string) (chain.Registration, error) {
	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return chain.Registration{}, ErrBusy
	}
	switch f.state.Step {
	case StepForm:
	case StepConnect:
		f.mu.Unlock()
		return chain.Registration{}, ErrNotConnected
	default:
		f.mu.Unlock()
		return chain.Registration{}, ErrFormClosed
	}
	name = strings.TrimSpace(name)
	if name == "" {
		f.state.Err = ErrNameRequired
		f.mu.Unlock()
		return chain.Registration{}, ErrNameRequired
	}
	f.busy = true
	f.state.Name = name
	f.state.TxHash = common.Hash{}
	f.state.Err = nil
	f.transition(StepConfirming)
	f.mu.Unlock()

	reg, err := f.register(ctx, name)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	if err != nil {
		f.state.Err = err
		f.transition(StepError)
		f.logger.Warn().Err(err).Str("kind", chain.KindOf(err).String()).Msg("registration failed")
		return chain.Registration{}, err
	}
	f.state.Result = &reg
	f.completed++
	f.transition(StepSuccess)
	f.logger.Info().Uint64("startup_id", reg.ID).Str("tx", reg.TxHash.Hex()).Msg("registration confirmed")
	return reg, nil
}

func (f *Flow) register(ctx context.Context, name string) (chain.Registration, error) {
	if err := f.client.EnsureNetwork(ctx); err != nil {
		return chain.Registration{}, err
	}
	registry, err := f.client.ContractWithSigner(ctx)
	if err != nil {
		return chain.Registration{}, err
	}
	return registry.RegisterStartupNotify(ctx, name, func(hash common.Hash) {
		f.mu.Lock()
		f.state.TxHash = hash
		f.mu.Unlock()
	})
}

// Retry returns from the error step to the form with the name kept.
func (f *Flow) Retry() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Step != StepError {
		return ErrNoRetry
	}
	f.state.Err = nil
	f.transition(StepForm)
	return nil
}

// Reset starts a new registration after a success.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return
	}
	f.state.Name = ""
	f.state.TxHash = common.Hash{}
	f.state.Result = nil
	f.state.Err = nil
	if f.state.Account == (common.Address{}) {
		f.transition(StepConnect)
		return
	}
	f.transition(StepForm)
}

// HandleAccountsChanged follows the wallet's account list. An empty list
// sends the flow back to connect unless a submission is in flight.
func (f *Flow) HandleAccountsChanged(accounts []common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(accounts) == 0 {
		f.state.Account = common.Address{}
		if !f.busy {
			f.transition(StepConnect)
		}
		return
	}
	f.state.Account = accounts[0]
	if f.state.Step == StepConnect {
		f.transition(StepForm)
	}
}

// Watch subscribes the flow to wallet account changes.
func (f *Flow) Watch() (off func()) {
	p := f.client.Provider()
	if p == nil {
		return func() {}
	}
	return p.On(chain.EventAccountsChanged, func(payload any) {
		if accounts, ok := payload.([]common.Address); ok {
			f.HandleAccountsChanged(accounts)
		}
	})
}

// transition must be called with f.mu held.
func (f *Flow) transition(to Step) {
	if f.state.Step == to {
		return
	}
	f.logger.Debug().Str("from", string(f.state.Step)).Str("to", string(to)).Msg("registration step")
	f.state.Step = to
}
