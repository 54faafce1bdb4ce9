// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package server

import "html/template"

const (
	successPage = "success"
	errorPage   = "error"
)

const pagesTmpl = `
{{define "success"}}<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<title>Account linked</title>
</head>
<body>
	<main>
		<h1 id="title">Account linked</h1>
		<p id="message">{{.ChatUserName}} is now linked to <span id="username">{{.Username}}</span>.</p>
		<p>You can close this window and return to chat.</p>
	</main>
</body>
</html>
{{end}}
{{define "error"}}<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<title>{{.Title}}</title>
</head>
<body>
	<main>
		<h1 id="title">{{.Title}}</h1>
		<p id="message">{{.Message}}</p>
	</main>
</body>
</html>
{{end}}
`

var pages = template.Must(template.New("pages").Parse(pagesTmpl))

type errorData struct {
	Title   string
	Message string
}

var (
	invalidLinkPage = errorData{
		Title:   "Link expired",
		Message: "This link is invalid or has expired. Run the command again in chat to get a new one.",
	}
	authFailedPage = errorData{
		Title:   "Authentication failed",
		Message: "We couldn't confirm your identity. Open the link from chat again to retry.",
	}
	internalErrorPage = errorData{
		Title:   "Something went wrong",
		Message: "We couldn't link your account. Open the link from chat again to retry.",
	}
)
