package app

import (
	"fmt"
	"strings"

	"appforge/pkg/domain"
)

const freshReplyShape = `Always return the response as a JSON object with fields: "files" (array of objects with "path" and "content") and "description" (string explaining the project).`

const updateReplyShape = `Return the response as a JSON object in the following format:
{
  "files": [
    {
      "action": "update" | "add" | "delete",
      "path": "file_path",
      "content": "file_content"
    }
  ],
  "description": "Description of changes made"
}
The "content" field is required for add and update actions and must be omitted for delete.`

// freshSystemPrompt returns the generation instruction, specialized per
// framework when one is requested.
func freshSystemPrompt(framework string) string {
	var intro string
	switch strings.ToLower(strings.TrimSpace(framework)) {
	case "react":
		intro = "You are a helpful assistant that generates small React projects. " +
			"Produce a complete runnable project: an index.html entry point, a package.json, " +
			"and JSX components under src/. Use functional components and hooks."
	case "vue":
		intro = "You are a helpful assistant that generates small Vue 3 projects. " +
			"Produce a complete runnable project: an index.html entry point, a package.json, " +
			"and single-file components under src/ using the composition API."
	case "svelte":
		intro = "You are a helpful assistant that generates small Svelte projects. " +
			"Produce a complete runnable project: an index.html entry point, a package.json, " +
			"and .svelte components under src/."
	default:
		intro = "You are a helpful assistant that generates small static web projects. " +
			"Produce plain HTML, CSS, and JavaScript files with an index.html entry point. " +
			"Do not use any build tooling."
	}
	return intro + " File paths must be relative. " + freshReplyShape
}

// updateSystemPrompt returns the incremental-update instruction.
func updateSystemPrompt() string {
	return "You are a helpful assistant that analyzes and modifies code files. " +
		"For each file that needs to change, emit one operation. " + updateReplyShape
}

// updateUserPrompt serializes the owner's current artifact set together
// with the new instruction into one combined prompt.
func updateUserPrompt(artifacts []domain.Artifact, instruction string) string {
	var b strings.Builder
	b.WriteString("Current project files:\n")
	for _, a := range artifacts {
		fmt.Fprintf(&b, "File: %s\nContent:\n%s\n\n", a.Path, a.Content)
	}
	b.WriteString("User request:\n")
	b.WriteString(instruction)
	b.WriteString("\n\nPlease analyze these files and provide necessary updates.")
	return b.String()
}
