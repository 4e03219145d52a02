package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/clearcard/sqljob/sqlworker"
)

func main() {
	if err := sqlworker.Run(); err != nil {
		log.Error().Err(err).Msg("worker exited with error")
		os.Exit(1)
	}
}
