package main

import "github.com/goplus/sqlmk/cmd/sqlmk/internal"

func main() {
	internal.Execute()
}
