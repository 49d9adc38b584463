package hss

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/sipauth/pkg/sip/av"
	"github.com/marmos91/sipauth/pkg/sip/digest"
)

// Subscriber is one statically provisioned identity. Exactly one of
// Password, HA1 or AKA is set.
type Subscriber struct {
	IMPI     string  `mapstructure:"impi" yaml:"impi" validate:"required"`
	Password string  `mapstructure:"password" yaml:"password,omitempty"`
	HA1      string  `mapstructure:"ha1" yaml:"ha1,omitempty"`
	QoP      string  `mapstructure:"qop" yaml:"qop,omitempty"`
	AKA      *av.AKA `mapstructure:"aka" yaml:"aka,omitempty"`
}

// Validate checks that the subscriber names an identity and carries exactly
// one kind of credential.
func (s Subscriber) Validate() error {
	if s.IMPI == "" {
		return errors.New("subscriber without impi")
	}
	set := 0
	for _, ok := range []bool{s.Password != "", s.HA1 != "", s.AKA != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("subscriber %q: exactly one of password, ha1 or aka is required", s.IMPI)
	}
	return nil
}

func (s Subscriber) vector(realm string) (*av.Vector, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	var v *av.Vector
	switch {
	case s.AKA != nil:
		v = av.NewAKA(*s.AKA)
	case s.HA1 != "":
		v = av.NewDigest(av.Digest{HA1: s.HA1, QoP: s.QoP})
	default:
		v = av.NewDigest(av.Digest{HA1: digest.ComputeHA1(s.IMPI, realm, s.Password), QoP: s.QoP})
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("subscriber %q: %w", s.IMPI, err)
	}
	return v, nil
}

// StaticSource serves vectors for a fixed subscriber list. It is meant for
// labs and tests; AKA subscribers get the same quintet every time.
type StaticSource struct {
	mu      sync.RWMutex
	vectors map[string]*av.Vector
}

var _ Source = (*StaticSource)(nil)

// NewStaticSource builds a source for subs. Password subscribers get their
// HA1 computed for realm.
func NewStaticSource(realm string, subs []Subscriber) (*StaticSource, error) {
	s := &StaticSource{vectors: make(map[string]*av.Vector, len(subs))}
	for _, sub := range subs {
		if err := s.Add(realm, sub); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add provisions or replaces one subscriber.
func (s *StaticSource) Add(realm string, sub Subscriber) error {
	v, err := sub.vector(realm)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.vectors[sub.IMPI] = v
	s.mu.Unlock()
	return nil
}

// Fetch implements Source.
func (s *StaticSource) Fetch(ctx context.Context, req FetchRequest) (*av.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	s.mu.RLock()
	v, ok := s.vectors[req.PrivateID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIdentity, req.PrivateID)
	}
	return v, nil
}
