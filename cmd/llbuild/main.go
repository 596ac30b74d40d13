package main

import "github.com/goplus/llbuild/cmd/llbuild/internal"

func main() {
	internal.Execute()
}
