package main

import "github.com/okaypadak/everup-backend/cmd"

func main() {
	cmd.Execute()
}
