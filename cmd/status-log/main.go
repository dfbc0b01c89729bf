package main

import "github.com/calvinmclean/pilldispenser/statuslog"

func main() {
	statuslog.NewAPI().RunCLI()
}
