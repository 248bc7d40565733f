package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/trehub/airlock/internal/app"
	"github.com/trehub/airlock/internal/config"
)

// positionals returns the arguments that are neither flags nor flag values.
// Flags are handled by the config package; the remainder names the command.
func positionals(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		if strings.HasPrefix(args[i], "-") {
			if !strings.Contains(args[i], "=") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++
			}
			continue
		}
		out = append(out, args[i])
	}
	return out
}

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx, positionals(os.Args[1:])); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
}
