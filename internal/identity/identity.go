package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/credits/pkg/ledger"
	"github.com/google/uuid"
)

const (
	errorOperationIdentity = "identity"
	errorSubjectLink       = "link"
	errorCodeFind          = "find"
	errorCodeCreateAccount = "create_account"
	errorCodeInsert        = "insert"
	errorCodeInvalid       = "invalid"
)

var (
	// ErrLinkExists is returned by a LinkStore when (platform, platform user id) is already linked.
	ErrLinkExists = errors.New("identity link already exists")
	// ErrInvalidPlatformUserID rejects empty platform user ids.
	ErrInvalidPlatformUserID = errors.New("invalid platform user id")
	// ErrInvalidResolverConfig reports a missing dependency.
	ErrInvalidResolverConfig = errors.New("invalid resolver config")
)

// Link binds a platform-local user to a unified ledger account.
type Link struct {
	Platform       ledger.SourcePlatform
	PlatformUserID string
	AccountID      ledger.AccountID
	CreatedUnixUTC int64
}

// LinkStore persists identity links.
type LinkStore interface {
	FindIdentityLink(ctx context.Context, platform ledger.SourcePlatform, platformUserID string) (ledger.AccountID, bool, error)
	// InsertIdentityLink returns ErrLinkExists when the pair is already linked.
	InsertIdentityLink(ctx context.Context, link Link) error
}

// AccountCreator creates the ledger account behind a new link.
type AccountCreator interface {
	CreateAccount(ctx context.Context, account ledger.Account) error
}

// Resolver maps (platform, platform user id) to a unified account id.
type Resolver struct {
	links    LinkStore
	accounts AccountCreator
	nowFn    func() int64
	newID    func() string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithAccountIDGenerator overrides how new account ids are minted.
func WithAccountIDGenerator(generator func() string) ResolverOption {
	return func(resolver *Resolver) {
		if generator != nil {
			resolver.newID = generator
		}
	}
}

// NewResolver wires a Resolver.
func NewResolver(links LinkStore, accounts AccountCreator, now func() int64, options ...ResolverOption) (*Resolver, error) {
	if links == nil || accounts == nil || now == nil {
		return nil, fmt.Errorf("%w: links, accounts and clock are required", ErrInvalidResolverConfig)
	}
	resolver := &Resolver{links: links, accounts: accounts, nowFn: now, newID: uuid.NewString}
	for _, option := range options {
		option(resolver)
	}
	return resolver, nil
}

// Resolve returns the account linked to the platform user, creating the account
// and link on first use. Concurrent first resolutions converge on one account.
func (resolver *Resolver) Resolve(ctx context.Context, platform ledger.SourcePlatform, platformUserID string) (ledger.AccountID, error) {
	platformUserID = strings.TrimSpace(platformUserID)
	if platformUserID == "" {
		return ledger.AccountID{}, fmt.Errorf("%w: empty value", ErrInvalidPlatformUserID)
	}
	if platform.String() == "" {
		return ledger.AccountID{}, fmt.Errorf("%w: empty value", ledger.ErrInvalidSourcePlatform)
	}
	accountID, found, err := resolver.links.FindIdentityLink(ctx, platform, platformUserID)
	if err != nil {
		return ledger.AccountID{}, ledger.WrapError(errorOperationIdentity, errorSubjectLink, errorCodeFind, err)
	}
	if found {
		return accountID, nil
	}

	accountID, err = ledger.NewAccountID(resolver.newID())
	if err != nil {
		return ledger.AccountID{}, ledger.WrapError(errorOperationIdentity, errorSubjectLink, errorCodeInvalid, err)
	}
	nowUnixUTC := resolver.nowFn()
	account, err := ledger.OpenAccount(accountID, nowUnixUTC)
	if err != nil {
		return ledger.AccountID{}, ledger.WrapError(errorOperationIdentity, errorSubjectLink, errorCodeInvalid, err)
	}
	if err := resolver.accounts.CreateAccount(ctx, account); err != nil {
		return ledger.AccountID{}, ledger.WrapError(errorOperationIdentity, errorSubjectLink, errorCodeCreateAccount, err)
	}
	insertErr := resolver.links.InsertIdentityLink(ctx, Link{
		Platform:       platform,
		PlatformUserID: platformUserID,
		AccountID:      accountID,
		CreatedUnixUTC: nowUnixUTC,
	})
	if insertErr == nil {
		return accountID, nil
	}
	if !errors.Is(insertErr, ErrLinkExists) {
		return ledger.AccountID{}, ledger.WrapError(errorOperationIdentity, errorSubjectLink, errorCodeInsert, insertErr)
	}
	// Lost the race; the winner's link is authoritative.
	winner, found, err := resolver.links.FindIdentityLink(ctx, platform, platformUserID)
	if err != nil {
		return ledger.AccountID{}, ledger.WrapError(errorOperationIdentity, errorSubjectLink, errorCodeFind, err)
	}
	if !found {
		return ledger.AccountID{}, ledger.WrapError(errorOperationIdentity, errorSubjectLink, errorCodeFind, insertErr)
	}
	return winner, nil
}
