package local

import "github.com/gobeaver/convkit"

func init() {
	convkit.RegisterStore("local", func(cfg *convkit.Config) (convkit.Store, error) {
		return New(cfg.LocalBasePath)
	})
}
