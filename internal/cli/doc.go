// Package cli implements the tgtoolkit operator command line.
//
// Most commands work offline on local files: sealing and opening .tgbak
// backups, checking a backup password, and encrypting files with the
// session vault key. Two commands touch the server side: token mints an
// access token for the control API and call issues one API request.
//
// Usage:
//
//	tgcli token   [-s secret] [-operator name] [-ttl 24h]
//	tgcli genkey
//	tgcli seal    -in file [-out file] [-no-compress]
//	tgcli seal    -dir exportDir
//	tgcli open    -in file.tgbak [-out file] [-no-decompress]
//	tgcli open    -in dir.tgbak -dir outDir
//	tgcli verify  -in file.tgbak
//	tgcli vault-encrypt -in file [-out file] [-k key] [-s secret]
//	tgcli vault-decrypt -in file.enc [-out file] [-k key] [-s secret]
//	tgcli call    [-addr host:port] [-token jwt] Method ['{"json": "body"}']
//
// Passwords are read from TGTOOLKIT_PASSWORD when set, otherwise prompted
// for without echo. The secret defaults to TGTOOLKIT_SECRET_KEY and the
// token for call to TGTOOLKIT_TOKEN.
package cli
