package config

import (
	_ "github.com/punk-blvck/blvck-hub/internal/strategy/cachefirst"
	_ "github.com/punk-blvck/blvck-hub/internal/strategy/networkfirst"
	_ "github.com/punk-blvck/blvck-hub/internal/strategy/ttlcache"
)
