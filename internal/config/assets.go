package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/kingdavid6336/stellar-anchor/internal/domain/model"
)

// DirectionPolicy holds the fee and limit parameters for one transfer
// direction of an asset. FeeCreate only applies to deposits that need to fund
// a new destination account. Min/Max are nil when no limit is configured.
type DirectionPolicy struct {
	FeePercent decimal.Decimal
	FeeFixed   decimal.Decimal
	FeeCreate  decimal.Decimal
	Min        *decimal.Decimal
	Max        *decimal.Decimal
}

// AssetPolicy is the validated per-asset policy configuration.
type AssetPolicy struct {
	Code               string
	Chain              string // external chain handling deposits of this asset
	Issuer             string // Stellar issuing account of the anchor token
	RateProviderID     string // rate provider's identifier, empty when unlisted
	Deposit            DirectionPolicy
	Withdrawal         DirectionPolicy
	WithdrawalBatching bool
}

// Direction returns the policy for the given transaction type.
func (p *AssetPolicy) Direction(t model.TransactionType) *DirectionPolicy {
	if t == model.TransactionTypeWithdrawal {
		return &p.Withdrawal
	}
	return &p.Deposit
}

// AssetRegistry maps asset codes to validated policies. Presence of all
// required fields is checked at load time so later lookups can assume a
// complete policy per (type, asset) pair.
type AssetRegistry struct {
	policies map[string]*AssetPolicy
}

// Get returns the policy for an asset code, or an error when the asset is
// not configured.
func (r *AssetRegistry) Get(asset string) (*AssetPolicy, error) {
	p, ok := r.policies[asset]
	if !ok {
		return nil, fmt.Errorf("asset %q is not configured", asset)
	}
	return p, nil
}

// Codes returns the configured asset codes in sorted order.
func (r *AssetRegistry) Codes() []string {
	codes := make([]string, 0, len(r.policies))
	for code := range r.policies {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Raw YAML shapes. Monetary values are quoted strings so they survive YAML
// parsing without any binary float round-trip.
type assetsFile struct {
	Assets map[string]assetYAML `yaml:"assets"`
}

type assetYAML struct {
	Chain              string        `yaml:"chain"`
	Issuer             string        `yaml:"issuer"`
	RateProviderID     string        `yaml:"rate_provider_id"`
	Deposit            directionYAML `yaml:"deposit"`
	Withdrawal         directionYAML `yaml:"withdrawal"`
	WithdrawalBatching bool          `yaml:"withdrawal_batching"`
}

type directionYAML struct {
	FeePercent string `yaml:"fee_percent"`
	FeeFixed   string `yaml:"fee_fixed"`
	FeeCreate  string `yaml:"fee_create"`
	Min        string `yaml:"min"`
	Max        string `yaml:"max"`
}

// LoadAssets reads and validates the per-asset policy file.
func LoadAssets(path string) (*AssetRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read assets config: %w", err)
	}
	return ParseAssets(data)
}

// ParseAssets parses and validates per-asset policy YAML.
func ParseAssets(data []byte) (*AssetRegistry, error) {
	var file assetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse assets config: %w", err)
	}
	if len(file.Assets) == 0 {
		return nil, fmt.Errorf("assets config defines no assets")
	}

	reg := &AssetRegistry{policies: make(map[string]*AssetPolicy, len(file.Assets))}
	for code, raw := range file.Assets {
		policy, err := buildAssetPolicy(code, raw)
		if err != nil {
			return nil, fmt.Errorf("asset %q: %w", code, err)
		}
		reg.policies[code] = policy
	}
	return reg, nil
}

func buildAssetPolicy(code string, raw assetYAML) (*AssetPolicy, error) {
	if raw.Chain == "" {
		return nil, fmt.Errorf("chain is required")
	}
	deposit, err := buildDirectionPolicy(raw.Deposit, true)
	if err != nil {
		return nil, fmt.Errorf("deposit: %w", err)
	}
	withdrawal, err := buildDirectionPolicy(raw.Withdrawal, false)
	if err != nil {
		return nil, fmt.Errorf("withdrawal: %w", err)
	}
	return &AssetPolicy{
		Code:               code,
		Chain:              raw.Chain,
		Issuer:             raw.Issuer,
		RateProviderID:     raw.RateProviderID,
		Deposit:            deposit,
		Withdrawal:         withdrawal,
		WithdrawalBatching: raw.WithdrawalBatching,
	}, nil
}

func buildDirectionPolicy(raw directionYAML, allowCreate bool) (DirectionPolicy, error) {
	var p DirectionPolicy
	var err error

	if p.FeePercent, err = parseRequiredDecimal("fee_percent", raw.FeePercent); err != nil {
		return p, err
	}
	if p.FeeFixed, err = parseRequiredDecimal("fee_fixed", raw.FeeFixed); err != nil {
		return p, err
	}
	if raw.FeeCreate != "" {
		if !allowCreate {
			return p, fmt.Errorf("fee_create is only valid for deposits")
		}
		if p.FeeCreate, err = parseRequiredDecimal("fee_create", raw.FeeCreate); err != nil {
			return p, err
		}
	}
	if p.Min, err = parseOptionalDecimal("min", raw.Min); err != nil {
		return p, err
	}
	if p.Max, err = parseOptionalDecimal("max", raw.Max); err != nil {
		return p, err
	}

	if p.FeePercent.IsNegative() || p.FeeFixed.IsNegative() || p.FeeCreate.IsNegative() {
		return p, fmt.Errorf("fees must not be negative")
	}
	if p.Min != nil && p.Max != nil && p.Min.GreaterThan(*p.Max) {
		return p, fmt.Errorf("min %s exceeds max %s", p.Min, p.Max)
	}
	return p, nil
}

func parseRequiredDecimal(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, fmt.Errorf("%s is required", field)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

func parseOptionalDecimal(field, value string) (*decimal.Decimal, error) {
	if value == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &d, nil
}
