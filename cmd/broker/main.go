package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/clearcard/sqljob/brokerservice"
)

func main() {
	if err := brokerservice.Run(); err != nil {
		log.Error().Err(err).Msg("broker exited with error")
		os.Exit(1)
	}
}
