package memory

import "github.com/gobeaver/convkit"

func init() {
	convkit.RegisterStore("memory", func(cfg *convkit.Config) (convkit.Store, error) {
		return New(), nil
	})
}
