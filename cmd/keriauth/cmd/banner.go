package cmd

import (
	"fmt"
	"io"
)

const banner = `
  _  _______ ____  ___      _         _   _     
 | |/ / ____|  _ \|_ _|    / \  _   _| |_| |__  
 | ' /|  _| | |_) || |    / _ \| | | | __| '_ \ 
 | . \| |___|  _ < | |   / ___ \ |_| | |_| | | |
 |_|\_\_____|_| \_\___| /_/   \_\__,_|\__|_| |_|
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Background Dispatcher - Version %s\x1b[0m\n\n", Version)
}
