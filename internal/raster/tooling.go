package raster

import (
	"os/exec"
	"strings"
)

// Status reports the availability of one external utility.
type Status struct {
	Name      string
	Available bool
	Path      string
	Version   string
	Error     error
}

// requiredTools are the GDAL utilities the pipeline shells out to.
var requiredTools = []string{"gdalinfo", "gdal_translate", "gdalwarp"}

// Detect checks every required GDAL utility and reports what it found.
func Detect() []Status {
	statuses := make([]Status, 0, len(requiredTools))
	for _, name := range requiredTools {
		statuses = append(statuses, checkTool(name))
	}
	return statuses
}

// Available reports whether every required utility resolves on PATH.
func Available() bool {
	for _, st := range Detect() {
		if !st.Available {
			return false
		}
	}
	return true
}

func checkTool(name string) Status {
	st := Status{Name: name}
	path, err := exec.LookPath(name)
	if err != nil {
		st.Error = err
		return st
	}
	st.Path = path
	st.Available = true

	// Version output is informational; a tool that resolves but cannot
	// report a version still counts as available.
	output, err := exec.Command(name, "--version").CombinedOutput()
	if err == nil || len(output) > 0 {
		st.Version = firstLine(string(output))
	}
	return st
}

func firstLine(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return "unknown"
}
