package main

import "visforge/cmd/forgecheck/root"

func main() {
	root.Execute()
}
