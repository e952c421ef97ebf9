package provisioner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain"
	"github.com/vertextoedge/owncloud-controlled-link/internal/domain/vo"
	"github.com/vertextoedge/owncloud-controlled-link/internal/port"
	"github.com/vertextoedge/owncloud-controlled-link/internal/service/folder"
	"go.uber.org/zap"
)

// Config holds provisioner configuration
type Config struct {
	Enabled       bool
	FolderName    string
	ShareDuration time.Duration
	TransferMode  domain.TransferMode
	CallTimeout   time.Duration

	// RetryAfter is the delay advertised with RequestFailed errors
	RetryAfter time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		FolderName:    "Moodlefiles",
		ShareDuration: 604800 * time.Second,
		TransferMode:  domain.TransferNone,
		CallTimeout:   30 * time.Second,
		RetryAfter:    30 * time.Second,
	}
}

// Request asks for one access-controlled link
type Request struct {
	UserID    string
	Reference string
	Context   domain.ItemContext
}

// Provisioner runs the linear provisioning state machine:
// system identity, user identity, folder, optional transfer, share.
// It never retries; every failure ends the attempt with a ProvisionError.
type Provisioner struct {
	config    Config
	issuer    *domain.Issuer
	broker    port.IdentityBroker
	connector port.Connector
	ensurer   *folder.Ensurer
	links     port.LinkRepository
	metrics   port.ProvisionMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a new provisioner. links and metrics may be nil.
func New(
	cfg Config,
	issuer *domain.Issuer,
	broker port.IdentityBroker,
	connector port.Connector,
	links port.LinkRepository,
	metrics port.ProvisionMetrics,
	logger *zap.Logger,
) *Provisioner {
	defaults := DefaultConfig()
	if cfg.FolderName == "" {
		cfg.FolderName = defaults.FolderName
	}
	if cfg.ShareDuration <= 0 {
		cfg.ShareDuration = defaults.ShareDuration
	}
	if cfg.TransferMode == "" {
		cfg.TransferMode = defaults.TransferMode
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaults.CallTimeout
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = defaults.RetryAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provisioner{
		config:    cfg,
		issuer:    issuer,
		broker:    broker,
		connector: connector,
		ensurer:   folder.NewEnsurer(folder.Config{CallTimeout: cfg.CallTimeout}, metrics, logger.Named("folder")),
		links:     links,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// attempt carries the state of one Provision call
type attempt struct {
	req    Request
	state  State
	start  time.Time
	logger *zap.Logger

	system port.AuthenticatedClient
	user   port.AuthenticatedClient

	folder     vo.RemotePath
	sharedPath vo.RemotePath
}

func (a *attempt) advance(s State) {
	a.state = s
	a.logger.Debug("provisioning state", zap.String("state", s.String()))
}

// Provision creates a time limited share of req.Reference for req.UserID
// inside the controlled link folder. The returned error is either an input
// error wrapping domain.ErrInvalidInput or a *domain.ProvisionError.
func (p *Provisioner) Provision(ctx context.Context, req Request) (*domain.LinkOutcome, error) {
	a := &attempt{
		req:   req,
		state: StateInit,
		start: p.now(),
		logger: p.logger.With(
			zap.String("user", req.UserID),
			zap.String("reference", req.Reference)),
	}

	outcome, err := p.run(ctx, a)
	if err != nil {
		a.state = StateFailed
		kind := domain.KindOf(err)
		a.logger.Warn("provisioning failed",
			zap.String("kind", kind.String()),
			zap.Error(err))
		p.observe(kind.String(), a.start)
		return nil, err
	}

	a.advance(StateShareCreated)
	p.observe("success", a.start)
	p.saveLink(a, outcome)

	return outcome, nil
}

func (p *Provisioner) run(ctx context.Context, a *attempt) (*domain.LinkOutcome, error) {
	// Init: preconditions, no network calls
	if !p.config.Enabled {
		return nil, domain.NewProvisionError(domain.KindConfiguration, domain.ErrRepositoryDisabled, "")
	}
	if err := p.issuer.Validate(); err != nil {
		return nil, domain.NewProvisionError(domain.KindConfiguration, err, "")
	}

	base := vo.NewRemotePath(p.config.FolderName)
	segments := a.req.Context.Segments()
	if err := p.validate(a.req, base, segments); err != nil {
		return nil, err
	}

	system, err := p.broker.SystemClient(ctx, p.issuer)
	if err != nil {
		return nil, domain.NewProvisionError(domain.KindCannotConnectAsSystem, err, "")
	}
	if p.config.TransferMode != domain.TransferNone && system.Identity().Username == "" {
		// the handover share would go out with an empty shareWith
		return nil, domain.NewProvisionError(domain.KindConfiguration, domain.ErrSystemUnnamed, "")
	}
	a.system = system
	a.advance(StateSystemAuthenticated)

	user, err := p.broker.UserClient(ctx, p.issuer, a.req.UserID)
	if err != nil {
		return nil, domain.NewProvisionError(domain.KindCannotConnectAsUser, err, "")
	}
	a.user = user
	a.advance(StateUserAuthenticated)

	res, err := p.ensurer.Ensure(ctx, base, segments, p.connector.Store(system))
	if err != nil {
		return nil, p.requestFailed(err, res.FullPath.String())
	}
	if !res.Success {
		return nil, domain.NewProvisionError(domain.KindCannotDownload, domain.ErrFolderNotCreated, res.FullPath.String())
	}
	a.folder = res.FullPath
	a.advance(StateFolderEnsured)

	if err := p.transfer(ctx, a); err != nil {
		return nil, err
	}

	return p.share(ctx, a)
}

func (p *Provisioner) validate(req Request, base vo.RemotePath, segments []string) error {
	if req.UserID == "" {
		return fmt.Errorf("user id is required: %w", domain.ErrInvalidInput)
	}
	if strings.Trim(req.Reference, "/ ") == "" {
		return fmt.Errorf("reference must name a file: %w", domain.ErrInvalidInput)
	}
	if _, err := base.Append(segments...); err != nil {
		return fmt.Errorf("context does not map to a folder (%v): %w", err, domain.ErrInvalidInput)
	}
	return nil
}

// transfer brings the referenced file into the ensured folder. With
// TransferNone the file is expected to be there already.
func (p *Provisioner) transfer(ctx context.Context, a *attempt) error {
	reference := vo.NewRemotePath(a.req.Reference)
	if p.config.TransferMode == domain.TransferNone {
		a.sharedPath = a.folder.Join(reference.Base())
		return nil
	}

	// The user hands the file to the system account first
	userShares := p.connector.Shares(a.user)
	handover, err := p.createShare(ctx, userShares, domain.ShareRequest{
		Path:      reference,
		ShareType: domain.ShareTypeUser,
		ShareWith: a.system.Identity().Username,
	})
	if err != nil {
		return p.requestFailed(err, reference.String())
	}
	if !handover.Created() {
		return domain.NewProvisionError(domain.KindCannotDownload, domain.ErrShareRefused,
			fmt.Sprintf("handover of %s: ocs status %d", reference, handover.StatusCode))
	}

	src := vo.NewRemotePath(handover.FileTarget)
	dst := a.folder.Join(src.Base())

	callCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
	defer cancel()

	store := p.connector.Store(a.system)
	if p.config.TransferMode == domain.TransferCopy {
		err = store.Copy(callCtx, src, dst)
	} else {
		err = store.Move(callCtx, src, dst)
	}
	p.recordRemoteCall(string(p.config.TransferMode), err)
	if err != nil {
		if errors.Is(err, domain.ErrTransferRefused) {
			return domain.NewProvisionError(domain.KindCannotDownload, err, "could not be moved in the folder")
		}
		return p.requestFailed(err, dst.String())
	}

	if p.config.TransferMode == domain.TransferCopy {
		p.dropHandover(ctx, userShares, handover.ShareID, a.logger)
	}

	a.sharedPath = dst
	a.advance(StateFileTransferred)
	return nil
}

// dropHandover removes the temporary user to system share. A leftover share
// is harmless, so failures are only logged.
func (p *Provisioner) dropHandover(ctx context.Context, shares port.ShareClient, shareID string, logger *zap.Logger) {
	callCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
	defer cancel()

	err := shares.DeleteShare(callCtx, shareID)
	p.recordRemoteCall("delete_share", err)
	if err != nil {
		logger.Warn("failed to remove handover share",
			zap.String("share_id", shareID),
			zap.Error(err))
	}
}

func (p *Provisioner) share(ctx context.Context, a *attempt) (*domain.LinkOutcome, error) {
	shareWith := a.user.Identity().Username
	if shareWith == "" {
		shareWith = a.req.UserID
	}

	req := domain.NewShareRequest(a.sharedPath, shareWith, p.now(), p.config.ShareDuration)
	result, err := p.createShare(ctx, p.connector.Shares(a.system), req)
	if err != nil {
		return nil, p.requestFailed(err, a.sharedPath.String())
	}
	if !result.Created() {
		return nil, domain.NewProvisionError(domain.KindCannotDownload, domain.ErrShareRefused,
			fmt.Sprintf("%s: ocs status %d", a.sharedPath, result.StatusCode))
	}

	return &domain.LinkOutcome{
		Share:      *result,
		FolderPath: a.folder,
		SharedPath: a.sharedPath,
		ExpiresAt:  req.Expiration,
	}, nil
}

// requestFailed classifies a transport failure. The remote state is unknown,
// so the caller may try again after RetryAfter.
func (p *Provisioner) requestFailed(err error, detail string) *domain.ProvisionError {
	return domain.NewProvisionError(domain.KindRequestFailed, domain.NewRetryableError(err, p.config.RetryAfter), detail)
}

func (p *Provisioner) createShare(ctx context.Context, shares port.ShareClient, req domain.ShareRequest) (*domain.ShareResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
	defer cancel()

	result, err := shares.CreateShare(callCtx, req)
	p.recordRemoteCall("create_share", err)
	return result, err
}

func (p *Provisioner) saveLink(a *attempt, outcome *domain.LinkOutcome) {
	if p.links == nil {
		return
	}
	if err := p.links.SaveLink(outcome.Link(a.req.UserID, a.req.Reference, p.now())); err != nil {
		a.logger.Warn("failed to record provisioned link", zap.Error(err))
	}
}

func (p *Provisioner) observe(outcome string, start time.Time) {
	if p.metrics != nil {
		p.metrics.ObserveProvision(outcome, p.now().Sub(start))
	}
}

func (p *Provisioner) recordRemoteCall(op string, err error) {
	if p.metrics != nil {
		p.metrics.RecordRemoteCall(op, err != nil)
	}
}
