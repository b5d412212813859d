package customers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
)

// Profile is the signed-in customer cached for a device.
type Profile struct {
	Email string   `json:"email"`
	Tags  []string `json:"tags"`
}

// Anonymous reports whether no customer is signed in on the device.
func (p Profile) Anonymous() bool {
	return strings.TrimSpace(p.Email) == ""
}

type keyValueStore interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CustomerProfileKey(deviceID string) string
}

// Service caches customer profiles per device.
type Service interface {
	Get(ctx context.Context, deviceID string) (Profile, error)
	Save(ctx context.Context, deviceID string, profile Profile) (Profile, error)
	Clear(ctx context.Context, deviceID string) error
}

type service struct {
	kv keyValueStore
}

func NewService(kv keyValueStore) (Service, error) {
	if kv == nil {
		return nil, fmt.Errorf("key-value store required")
	}
	return &service{kv: kv}, nil
}

// Get returns the cached profile, or an empty one when none is stored.
func (s *service) Get(ctx context.Context, deviceID string) (Profile, error) {
	raw, ok, err := s.kv.Lookup(ctx, s.kv.CustomerProfileKey(deviceID))
	if err != nil {
		return Profile{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer profile")
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return Profile{Tags: []string{}}, nil
	}
	var profile Profile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return Profile{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode customer profile")
	}
	return normalize(profile), nil
}

func (s *service) Save(ctx context.Context, deviceID string, profile Profile) (Profile, error) {
	profile = normalize(profile)
	payload, err := json.Marshal(profile)
	if err != nil {
		return Profile{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode customer profile")
	}
	if err := s.kv.Set(ctx, s.kv.CustomerProfileKey(deviceID), string(payload), 0); err != nil {
		return Profile{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save customer profile")
	}
	return profile, nil
}

func (s *service) Clear(ctx context.Context, deviceID string) error {
	if err := s.kv.Del(ctx, s.kv.CustomerProfileKey(deviceID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear customer profile")
	}
	return nil
}

func normalize(profile Profile) Profile {
	profile.Email = strings.TrimSpace(profile.Email)
	tags := make([]string, 0, len(profile.Tags))
	seen := make(map[string]struct{}, len(profile.Tags))
	for _, tag := range profile.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, tag)
	}
	profile.Tags = tags
	return profile
}
