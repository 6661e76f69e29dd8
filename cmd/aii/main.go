// Command aii is a short alias that execs ai-issue with the same arguments.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

func main() {
	bin, err := exec.LookPath("ai-issue")
	if err != nil {
		fmt.Fprintln(os.Stderr, "aii: ai-issue not found on PATH")
		os.Exit(1)
	}
	if err := syscall.Exec(bin, append([]string{"ai-issue"}, os.Args[1:]...), os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "aii: %v\n", err)
		os.Exit(1)
	}
}
