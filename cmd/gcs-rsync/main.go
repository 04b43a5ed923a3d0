// Command gcs-rsync performs a one-way sync between a local directory and a
// Google Cloud Storage bucket prefix.
package main

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitOnError(err)
	}
}
