package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/ironcurtain/ironcurtain/pkg/config"
)

// runSetupSignalCommand captures the Signal bot's phone number and bot
// token into config.json. The Signal transport itself -- receiving
// messages, surfacing escalations, posting approvals back -- is an
// explicit Out-of-scope external collaborator (spec §1); this command only
// owns the config fields so the transport has somewhere to read them from.
func runSetupSignalCommand(args []string) error {
	configPath, _ := extractFlag(args, "--config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Signal phone number (e.g. +15551234567): ")
	phone, _ := reader.ReadString('\n')
	cfg.Signal.PhoneNumber = trimNewline(phone)

	fmt.Print("Signal bot token: ")
	token, _ := reader.ReadString('\n')
	cfg.Signal.BotToken = trimNewline(token)

	cfg.Signal.Enabled = cfg.Signal.PhoneNumber != "" && cfg.Signal.BotToken != ""

	if err := config.Save(cfg, configPath); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	if cfg.Signal.Enabled {
		fmt.Println("Signal bot configured. Start the bot transport separately; it reads these credentials from config.json.")
	} else {
		fmt.Println("Signal bot left disabled (phone number or token missing).")
	}
	return nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
