package access

import (
	"sync"
	"sync/atomic"

	"atlas/pkg/errors"
	"atlas/pkg/logger"
)

// Capability is a named permission held by a principal
type Capability string

const (
	CapCreateFund         Capability = "create_fund"
	CapAuthorizeToken     Capability = "authorize_token"
	CapPause              Capability = "pause"
	CapAdminTransferRoles Capability = "admin_transfer_roles"
)

// Service checks capabilities per principal and owns the process-wide
// pause flag. Every state-mutating entry point checks the flag first.
type Service struct {
	mu     sync.RWMutex
	grants map[string]map[Capability]bool

	paused atomic.Bool
	log    *logger.Logger
}

// NewService creates the access service with one admin principal holding
// every capability
func NewService(admin string) *Service {
	s := &Service{
		grants: make(map[string]map[Capability]bool),
		log:    logger.Get().With("component", "access_service"),
	}
	for _, cap := range []Capability{CapCreateFund, CapAuthorizeToken, CapPause, CapAdminTransferRoles} {
		s.grant(admin, cap)
	}
	return s
}

func (s *Service) grant(principal string, cap Capability) {
	if s.grants[principal] == nil {
		s.grants[principal] = make(map[Capability]bool)
	}
	s.grants[principal][cap] = true
}

// Has reports whether a principal holds a capability
func (s *Service) Has(principal string, cap Capability) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grants[principal][cap]
}

// Require fails with ErrUnauthorized when the capability is missing
func (s *Service) Require(principal string, cap Capability) error {
	if !s.Has(principal, cap) {
		return errors.Wrapf(errors.ErrUnauthorized, "%s lacks %s", principal, cap)
	}
	return nil
}

// Grant gives a principal a capability. The actor needs the role-transfer
// capability.
func (s *Service) Grant(actor, principal string, cap Capability) error {
	if err := s.Require(actor, CapAdminTransferRoles); err != nil {
		return err
	}

	s.mu.Lock()
	s.grant(principal, cap)
	s.mu.Unlock()

	s.log.Infow("Capability granted", "actor", actor, "principal", principal, "capability", cap)
	return nil
}

// Revoke removes a capability from a principal
func (s *Service) Revoke(actor, principal string, cap Capability) error {
	if err := s.Require(actor, CapAdminTransferRoles); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.grants[principal], cap)
	s.mu.Unlock()

	s.log.Infow("Capability revoked", "actor", actor, "principal", principal, "capability", cap)
	return nil
}

// Pause halts every state-mutating entry point
func (s *Service) Pause(actor string) error {
	if err := s.Require(actor, CapPause); err != nil {
		return err
	}
	s.paused.Store(true)
	s.log.Warnw("Engine paused", "actor", actor)
	return nil
}

// Unpause clears the pause flag
func (s *Service) Unpause(actor string) error {
	if err := s.Require(actor, CapPause); err != nil {
		return err
	}
	s.paused.Store(false)
	s.log.Infow("Engine unpaused", "actor", actor)
	return nil
}

// Paused reports the pause flag
func (s *Service) Paused() bool {
	return s.paused.Load()
}

// CheckRunning fails fast with ErrPaused while the engine is halted
func (s *Service) CheckRunning() error {
	if s.paused.Load() {
		return errors.ErrPaused
	}
	return nil
}
