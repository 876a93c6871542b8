package main

import (
	"fide-scraper/cmd/fide-scraper/commands"
	"fide-scraper/pkg/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
