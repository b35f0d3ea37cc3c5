package cmd

import (
	"fmt"
	"io"
)

const banner = `
  ____                      _       _   _                 _
 |  _ \ ___ _ __ ___   ___ | |_ ___| | | | __ _ _ __   __| |
 | |_) / _ \ '_ ` + "`" + ` _ \ / _ \| __/ _ \ |_| |/ _` + "`" + ` | '_ \ / _` + "`" + ` |
 |  _ <  __/ | | | | | (_) | ||  __/  _  | (_| | | | | (_| |
 |_| \_\___|_| |_| |_|\___/ \__\___|_| |_|\__,_|_| |_|\__,_|

`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Remote-Control Agent - Version %s\x1b[0m\n\n", Version)
}
