package game

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxPlatformLevel  = 10
	BasePlatformLevel = 0
)

// SystemResourceID tags ledger entries that no resource caused, such as settlement credits.
var SystemResourceID = uuid.Nil

var (
	ErrInvalidAmount        = errors.New("invalid transaction amount")
	ErrNotFound             = errors.New("resource not found")
	ErrAlreadyPurchased     = errors.New("item already purchased")
	ErrMaxLevelReached      = errors.New("maximum upgrade level of platform reached")
	ErrInsufficientFunds    = errors.New("not enough funds for purchase")
	ErrInvalidKind          = errors.New("invalid platform type specified")
	ErrInvalidAction        = errors.New("invalid action")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
	ErrTxConflict           = errors.New("transaction conflict, retry later")
)

type PlatformKind string

const (
	KindRig    PlatformKind = "Rig"
	KindGround PlatformKind = "Ground"
	KindPump   PlatformKind = "Pump"
)

// PlatformKinds lists every kind in catalog order.
var PlatformKinds = []PlatformKind{KindRig, KindGround, KindPump}

func ParsePlatformKind(s string) (PlatformKind, error) {
	v := strings.TrimSpace(s)
	for _, k := range PlatformKinds {
		if strings.EqualFold(v, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

func (k PlatformKind) String() string {
	return string(k)
}

type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Credit:
		return Credit, nil
	case Debit:
		return Debit, nil
	default:
		return "", fmt.Errorf("unknown ledger direction %q", s)
	}
}

type PlatformSpec struct {
	CreateCost     int64 `toml:"create_cost" json:"create_cost"`
	UpgradeCost    int64 `toml:"upgrade_cost" json:"upgrade_cost"`
	YieldIncrement int64 `toml:"yield_increment" json:"yield_increment"`
}

// Catalog is the static cost/yield table. It is read-only once the service is built.
type Catalog struct {
	Platforms map[PlatformKind]PlatformSpec
	MaxLevel  int
	Items     []NewItem
}

func DefaultCatalog() Catalog {
	return Catalog{
		Platforms: map[PlatformKind]PlatformSpec{
			KindRig:    {CreateCost: 1000, UpgradeCost: 100, YieldIncrement: 5},
			KindGround: {CreateCost: 10000, UpgradeCost: 500, YieldIncrement: 15},
			KindPump:   {CreateCost: 100000, UpgradeCost: 1000, YieldIncrement: 50},
		},
		MaxLevel: MaxPlatformLevel,
		Items:    DefaultItems(),
	}
}

func (c Catalog) Spec(kind PlatformKind) (PlatformSpec, error) {
	spec, ok := c.Platforms[kind]
	if !ok {
		return PlatformSpec{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return spec, nil
}

func (c Catalog) Validate() error {
	if c.MaxLevel <= BasePlatformLevel {
		return fmt.Errorf("max level must be > %d", BasePlatformLevel)
	}
	for _, k := range PlatformKinds {
		spec, ok := c.Platforms[k]
		if !ok {
			return fmt.Errorf("catalog is missing platform kind %s", k)
		}
		if spec.CreateCost < 0 || spec.UpgradeCost < 0 || spec.YieldIncrement < 0 {
			return fmt.Errorf("catalog entry %s has a negative value", k)
		}
	}
	for _, it := range c.Items {
		if strings.TrimSpace(it.Title) == "" {
			return fmt.Errorf("catalog item title is required")
		}
		if it.Cost < 0 {
			return fmt.Errorf("catalog item %q has a negative cost", it.Title)
		}
	}
	return nil
}

func DefaultItems() []NewItem {
	return []NewItem{
		{Title: "Heineken", Description: "Becoming the world's leading premium lager", Thumbnail: "https://www.lulu.lv/cache/images/2557649655/heineken-alus-0-33l-5-0_1819124495.jpg", Cost: 15000},
		{Title: "Carlsberg", Description: "Hundreds of beers at the heart of moments that bring people together", Thumbnail: "https://www.spiritsandwine.lv/img/items/92/9230.jpg", Cost: 20000},
		{Title: "Cesu Premium", Description: "Crispy, refreshing and well-balanced lager beer born in Cesis!", Thumbnail: "https://veikals.cesualus.lv/cdn/shop/products/Premium_PINT_2020-2_WEB_002_320x.png?v=1619431272", Cost: 30000},
		{Title: "Corona Extra", Description: "Mexican-born brew with a distinct flavor and iconic branding", Thumbnail: "https://booziecarry.lv/wp-content/uploads/2020/12/Alus-Corona-Extra-4-5-0-355l.jpg", Cost: 50000},
		{Title: "Lacplesis", Description: "Experience of many decades of brewing", Thumbnail: "https://www.spiritsandwine.lv/img/items/39/3983.jpeg", Cost: 100000},
		{Title: "San Miguel", Description: "Brewing Friendships, Celebrating Life", Thumbnail: "https://assets-global.website-files.com/63be70c06e09535c2b5300c0/63ea1fb7bb15a65195ff79a0_san_miguel.png", Cost: 200000},
		{Title: "Guiness", Description: "It takes a thirst for adventure to do things the Guinness way", Thumbnail: "https://dydza6t6xitx6.cloudfront.net/ci-guinness-draught-420c95ffc7f4bdc0.jpeg", Cost: 500000},
	}
}
