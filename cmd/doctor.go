package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/config"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/store/mongo"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("goclaw-mirror doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  Server pairs:")
	for _, p := range cfg.Pairs {
		fmt.Printf("    %-20s -> %s\n", p.SourceServerID, p.MirrorServerID)
	}

	fmt.Println()
	fmt.Println("  MongoDB:")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mongoStore, err := mongo.Connect(ctx, cfg.Database.URI, cfg.Database.Name)
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		os.Exit(1)
	}
	defer mongoStore.Close(context.Background())
	fmt.Printf("    %-12s OK (%s)\n", "Status:", cfg.Database.Name)

	fmt.Println()
	fmt.Println("  Discord:")
	if cfg.Discord.BotToken == "" {
		fmt.Println("    Bot token:   MISSING")
	} else {
		fmt.Println("    Bot token:   set")
	}
	if cfg.Discord.UserToken == "" {
		fmt.Println("    User token:  MISSING")
	} else {
		fmt.Println("    User token:  set")
	}
}
