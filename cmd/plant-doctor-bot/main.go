// @title Plant Doctor Bot API
// @version 1.0
// @description Telegram webhook bot that diagnoses plant problems from photos.
// @BasePath /
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"plant-doctor-bot/internal/bootstrap"
)

func main() {
	fmt.Printf("[%s] [INFO] [BOOT] starting plant-doctor-bot...\n", time.Now().Format("2006-01-02 15:04:05.000"))
	if err := bootstrap.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "plant-doctor-bot failed: %v\n", err)
		os.Exit(1)
	}
}
