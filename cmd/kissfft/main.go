// Command kissfft runs transforms on the KISS FFT engine, writes the
// engine binaries, and serves diagnostics.
package main

func main() {
	execute()
}
