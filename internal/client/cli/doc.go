// Package cli implements the filevault command-line client.
//
// Each invocation runs one command:
//
//	upload <path> [contentType]   upload a file and print its id and download key
//	list [contentType]            list your files
//	stats                         show file count and total size
//	info <fileId>                 show one file's metadata
//	download <fileId> [dir]       save a file (default dir: ./downloads)
//	delete <fileId>               delete a file
//	token <userId>                mint a development token (HS256, -s secret)
//
// download and delete need the download key. It is taken from -k or prompted
// for without echo.
package cli
