// Package main is the single-binary entrypoint for LearnQuest.
package main

import "github.com/learnquest/learnquest/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
