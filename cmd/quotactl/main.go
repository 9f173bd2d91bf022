package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/smallbiznis/quotaledger/internal/quotactl"
)

func main() {
	if err := quotactl.NewCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, quotactl.ErrDenied) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
