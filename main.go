package main

import "github.com/Yates-Labs/furrow/cmd"

func main() {
	cmd.Execute()
}
