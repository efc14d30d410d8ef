package config

import (
	"errors"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	DefaultCommissionRate = "0.05"
	DefaultCodePrefix     = "CRYPT"
)

var codePrefixPattern = regexp.MustCompile(`^[A-Z]{2,10}$`)

// CommissionPolicy is the point-in-time commission configuration.
// A reload only affects payments recorded after it.
type CommissionPolicy struct {
	Rate       decimal.Decimal
	CodePrefix string
}

func DefaultCommissionPolicy() CommissionPolicy {
	return CommissionPolicy{
		Rate:       decimal.RequireFromString(DefaultCommissionRate),
		CodePrefix: DefaultCodePrefix,
	}
}

type CommissionPolicyHolder struct {
	current atomic.Value // holds CommissionPolicy
}

// NewStaticCommissionPolicyHolder returns a holder that never reloads.
func NewStaticCommissionPolicyHolder(policy CommissionPolicy) *CommissionPolicyHolder {
	holder := &CommissionPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

// NewCommissionPolicyHolder reads commission.yml and watches it for changes.
func NewCommissionPolicyHolder(log *zap.Logger) (*CommissionPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("commission")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/referralhub")
	v.AddConfigPath(".")

	v.SetEnvPrefix("REFERRALHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("commission.rate", DefaultCommissionRate)
	v.SetDefault("commission.code_prefix", DefaultCodePrefix)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	policy, err := readCommissionPolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticCommissionPolicyHolder(policy)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := readCommissionPolicy(v)
		if err != nil {
			log.Warn("commission policy reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("commission policy reloaded",
			zap.String("file", e.Name),
			zap.String("rate", updated.Rate.String()),
			zap.String("code_prefix", updated.CodePrefix),
		)
	})

	return holder, nil
}

func (h *CommissionPolicyHolder) Get() CommissionPolicy {
	if h == nil {
		return DefaultCommissionPolicy()
	}
	policy, ok := h.current.Load().(CommissionPolicy)
	if !ok {
		return DefaultCommissionPolicy()
	}
	return policy
}

func readCommissionPolicy(v *viper.Viper) (CommissionPolicy, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(v.GetString("commission.rate")))
	if err != nil {
		return CommissionPolicy{}, errors.New("commission.rate must be a decimal")
	}
	policy := CommissionPolicy{
		Rate:       rate,
		CodePrefix: strings.ToUpper(strings.TrimSpace(v.GetString("commission.code_prefix"))),
	}
	if err := ValidateCommissionPolicy(policy); err != nil {
		return CommissionPolicy{}, err
	}
	return policy, nil
}

func ValidateCommissionPolicy(policy CommissionPolicy) error {
	if !policy.Rate.IsPositive() || policy.Rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.New("commission.rate must be between 0 and 1")
	}
	if !codePrefixPattern.MatchString(policy.CodePrefix) {
		return errors.New("commission.code_prefix must be 2-10 uppercase letters")
	}
	return nil
}
