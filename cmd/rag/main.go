package main

import "pdfrag/internal/cli"

func main() {
	cli.Execute()
}
