package config

import (
	"fmt"
	"strings"

	"crudeidle/internal/game"

	"github.com/BurntSushi/toml"
)

// catalogFile mirrors the TOML layout:
//
//	max_level = 10
//
//	[platforms.Rig]
//	create_cost = 1000
//	upgrade_cost = 100
//	yield_increment = 5
//
//	[[items]]
//	title = "Heineken"
//	cost = 15000
type catalogFile struct {
	MaxLevel  int                         `toml:"max_level"`
	Platforms map[string]platformOverride `toml:"platforms"`
	Items     []game.NewItem              `toml:"items"`
}

// platformOverride leaves a field nil when the table omits it, so only the
// keys present replace the defaults.
type platformOverride struct {
	CreateCost     *int64 `toml:"create_cost"`
	UpgradeCost    *int64 `toml:"upgrade_cost"`
	YieldIncrement *int64 `toml:"yield_increment"`
}

func (o platformOverride) apply(spec game.PlatformSpec) game.PlatformSpec {
	if o.CreateCost != nil {
		spec.CreateCost = *o.CreateCost
	}
	if o.UpgradeCost != nil {
		spec.UpgradeCost = *o.UpgradeCost
	}
	if o.YieldIncrement != nil {
		spec.YieldIncrement = *o.YieldIncrement
	}
	return spec
}

// LoadCatalog returns the default catalog with any values from path laid
// over it. An empty path returns the defaults.
func LoadCatalog(path string) (game.Catalog, error) {
	c := game.DefaultCatalog()
	if strings.TrimSpace(path) == "" {
		return c, nil
	}

	var f catalogFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return c, fmt.Errorf("read catalog %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return c, fmt.Errorf("catalog %s: unknown keys %v", path, undecoded)
	}
	return mergeCatalog(c, f)
}

func mergeCatalog(c game.Catalog, f catalogFile) (game.Catalog, error) {
	if f.MaxLevel != 0 {
		c.MaxLevel = f.MaxLevel
	}
	if len(f.Platforms) > 0 {
		platforms := make(map[game.PlatformKind]game.PlatformSpec, len(c.Platforms))
		for k, v := range c.Platforms {
			platforms[k] = v
		}
		for name, o := range f.Platforms {
			kind, err := game.ParsePlatformKind(name)
			if err != nil {
				return c, err
			}
			platforms[kind] = o.apply(platforms[kind])
		}
		c.Platforms = platforms
	}
	if len(f.Items) > 0 {
		c.Items = f.Items
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("catalog: %w", err)
	}
	return c, nil
}
