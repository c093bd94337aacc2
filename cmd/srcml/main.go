// ==========================================================================
//
// File Name:  main.go
//
// ==========================================================================

// The srcml command translates C, C++, C#, and Java source files into
// markup XML archives and extracts source back out of them. Inputs are
// classified by their leading bytes: markup XML is read and extracted,
// anything else is treated as source to translate.
package main

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/Rayne/srcml"
	"github.com/fatih/color"
)

var (
	redMsg  = color.New(color.FgRed, color.Bold)
	blueMsg = color.New(color.FgBlue)
)

func reportError(format string, args ...interface{}) {

	redMsg.Fprintf(os.Stderr, "ERROR: ")
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func reportWarning(format string, args ...interface{}) {

	blueMsg.Fprintf(os.Stderr, "WARNING: ")
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func missingValue(name string) {

	reportError("option %s requires a value", name)
	os.Exit(srcml.ExitMissingOptionValue)
}

func main() {

	args := os.Args[1:]

	output := "-"
	jobs := 0
	language := ""
	url := ""
	filename := ""
	version := ""
	tabs := 0
	forceArchive := false
	forceSolo := false
	relaxed := false
	gzipOut := false
	showInfo := false

	arch := srcml.New()

	var inputs []string

	// argument loop, one option at a time
	for len(args) > 0 {
		arg := args[0]
		args = args[1:]

		value := func(name string) string {
			if len(args) < 1 {
				missingValue(name)
			}
			v := args[0]
			args = args[1:]
			return v
		}

		switch {
		case arg == "-o" || arg == "--output":
			output = value(arg)
		case arg == "-j" || arg == "--jobs":
			n, err := strconv.Atoi(value(arg))
			if err != nil || n < 1 {
				reportError("invalid job count")
				os.Exit(srcml.ExitError)
			}
			jobs = n
		case arg == "-l" || arg == "--language":
			language = value(arg)
			if !srcml.CheckLanguage(language) {
				reportError("invalid language %q", language)
				os.Exit(srcml.ExitInvalidLanguage)
			}
		case arg == "--register-ext":
			pair := value(arg)
			pos := strings.Index(pair, "=")
			if pos < 1 {
				reportError("register-ext expects ext=language")
				os.Exit(srcml.ExitError)
			}
			if err := arch.RegisterFileExtension(pair[:pos], pair[pos+1:]); err != nil {
				reportError("%s", err.Error())
				os.Exit(srcml.ExitInvalidLanguage)
			}
		case arg == "--url":
			url = value(arg)
		case arg == "-f" || arg == "--filename":
			filename = value(arg)
		case arg == "-s" || arg == "--src-version":
			version = value(arg)
		case arg == "--tabs":
			n, err := strconv.Atoi(value(arg))
			if err != nil || n < 1 {
				reportError("invalid tab stop")
				os.Exit(srcml.ExitError)
			}
			tabs = n
		case strings.HasPrefix(arg, "--xmlns:"):
			prefix := arg[len("--xmlns:"):]
			if err := arch.RegisterNamespace(prefix, value(arg)); err != nil {
				reportError("%s", err.Error())
				os.Exit(srcml.ExitError)
			}
		case arg == "--xmlns":
			if err := arch.RegisterNamespace("", value(arg)); err != nil {
				reportError("%s", err.Error())
				os.Exit(srcml.ExitError)
			}
		case arg == "--xpath" || arg == "--xslt" || arg == "--xslt-param" || arg == "--relaxng":
			arch.AddTransform(strings.TrimPrefix(arg, "--"), value(arg))
		case arg == "--archive":
			forceArchive = true
		case arg == "--solo":
			forceSolo = true
		case arg == "--position":
			arch.EnableOption(srcml.OptionPosition)
		case arg == "--literal":
			arch.EnableOption(srcml.OptionLiteral)
		case arg == "--operator":
			arch.EnableOption(srcml.OptionOperator)
		case arg == "--modifier":
			arch.EnableOption(srcml.OptionModifier)
		case arg == "--cpp-markup-if0":
			arch.EnableOption(srcml.OptionCPPMarkupIf0)
		case arg == "--cpp-text-else":
			arch.EnableOption(srcml.OptionCPPTextElse)
		case arg == "--hash":
			arch.EnableHash()
		case arg == "--no-hash":
			arch.DisableHash()
		case arg == "--no-xml-declaration":
			arch.DisableOption(srcml.OptionXMLDecl)
		case arg == "--no-namespace-decl":
			arch.DisableOption(srcml.OptionNamespaceDecl)
		case arg == "--unstable-order":
			relaxed = true
		case arg == "-z" || arg == "--compress":
			gzipOut = true
		case arg == "-i" || arg == "--info":
			showInfo = true
		case arg == "-h" || arg == "--help":
			printUsage()
			return
		case strings.HasPrefix(arg, "-") && arg != "-":
			reportError("unknown option %q", arg)
			os.Exit(srcml.ExitUnknownOption)
		default:
			inputs = append(inputs, arg)
		}
	}

	if forceArchive && forceSolo {
		reportError("options --archive and --solo conflict")
		os.Exit(srcml.ExitConflictingOptions)
	}

	if len(inputs) == 0 {
		inputs = append(inputs, "-")
	}

	if url != "" {
		arch.SetURL(url)
	}
	if version != "" {
		arch.SetVersion(version)
	}
	if language != "" {
		arch.SetLanguage(language)
	}
	if tabs > 0 {
		arch.SetTabStop(tabs)
	}

	// a markup XML first input switches to the extract direction
	if len(inputs) == 1 && isXMLInput(inputs[0]) {
		os.Exit(extract(arch, inputs[0], output, showInfo))
	}

	if len(inputs) > 1 || forceArchive {
		arch.EnableFullArchive()
	}

	os.Exit(create(arch, inputs, output, filename, jobs, relaxed, gzipOut))
}

// isXMLInput probes the first bytes of a named input.
func isXMLInput(name string) bool {

	if name == "-" {
		return false
	}

	fl, err := os.Open(name)
	if err != nil {
		return false
	}
	defer fl.Close()

	head := make([]byte, 7)
	n, _ := fl.Read(head)

	return srcml.LooksLikeXML(head[:n])
}

// create translates source inputs into one markup XML document through the
// parse and write queues.
func create(arch *srcml.Archive, inputs []string, output, filename string, jobs int, relaxed, gzipOut bool) int {

	var compressed io.WriteCloser

	if gzipOut {
		w, err := srcml.OpenCompressedSink(output)
		if err != nil {
			reportError("%s", err.Error())
			return srcml.ExitError
		}
		compressed = w
		if err := arch.WriteOpenWriter(w); err != nil {
			reportError("%s", err.Error())
			return srcml.ExitError
		}
	} else if err := arch.WriteOpenFile(output); err != nil {
		reportError("%s", err.Error())
		return srcml.ExitError
	}

	wq := srcml.NewWriteQueue(arch, relaxed)
	pq := srcml.NewParseQueue(arch, jobs, wq)

	for _, name := range inputs {
		var src []byte
		var err error

		if name == "-" {
			src, err = ioutil.ReadAll(os.Stdin)
		} else {
			src, err = ioutil.ReadFile(name)
		}
		if err != nil {
			reportWarning("unable to read %q", name)
			continue
		}

		unitName := name
		if unitName == "-" {
			unitName = filename
		}
		if filename != "" && len(inputs) == 1 {
			unitName = filename
		}
		if unitName == "" {
			reportWarning("input has no filename, language must be set")
		}

		pq.Schedule(&srcml.ParseRequest{
			Source:   src,
			Filename: unitName,
		})
	}

	pq.Wait()

	if err := wq.Stop(); err != nil {
		reportError("%s", err.Error())
		return srcml.ExitCode(err)
	}
	if compressed != nil {
		if err := compressed.Close(); err != nil {
			reportError("%s", err.Error())
			return srcml.ExitError
		}
	}
	if err := arch.Err(); err != nil {
		reportError("%s", err.Error())
		return srcml.ExitCode(err)
	}

	return srcml.ExitSuccess
}

// extract reads a markup XML document and writes the original source of
// every unit to the output, or prints document metadata.
func extract(arch *srcml.Archive, input, output string, showInfo bool) int {

	if err := arch.ReadOpenFile(input); err != nil {
		reportError("%s", err.Error())
		return srcml.ExitCode(err)
	}
	defer arch.Close()

	if showInfo {
		return printInfo(arch)
	}

	out := os.Stdout
	if output != "-" {
		fl, err := os.Create(output)
		if err != nil {
			reportError("%s", err.Error())
			return srcml.ExitError
		}
		defer fl.Close()
		out = fl
	}

	for {
		unit, err := arch.ReadUnit()
		if err != nil {
			reportError("%s", err.Error())
			return srcml.ExitCode(err)
		}
		if unit == nil {
			break
		}

		src, err := unit.Unparse()
		if err != nil {
			reportError("%s", err.Error())
			return srcml.ExitCode(err)
		}
		out.Write(src)
	}

	return srcml.ExitSuccess
}

// printInfo displays root metadata the way the info option does.
func printInfo(arch *srcml.Archive) int {

	info, err := arch.Reader().ReadRootUnitAttributes()
	if err != nil {
		reportError("%s", err.Error())
		return srcml.ExitCode(err)
	}
	if info == nil {
		return srcml.ExitSuccess
	}

	fmt.Printf("encoding=%q\n", info.Encoding)
	if info.Language != "" {
		fmt.Printf("language=%q\n", info.Language)
	}
	if info.URL != "" {
		fmt.Printf("url=%q\n", info.URL)
	}
	if info.Filename != "" {
		fmt.Printf("filename=%q\n", info.Filename)
	}
	if info.Version != "" {
		fmt.Printf("version=%q\n", info.Version)
	}
	for _, ns := range info.Namespaces {
		if ns.Prefix == "" {
			fmt.Printf("xmlns=%q\n", ns.URI)
		} else {
			fmt.Printf("xmlns:%s=%q\n", ns.Prefix, ns.URI)
		}
	}

	return srcml.ExitSuccess
}

func printUsage() {

	fmt.Printf(`Usage: srcml [options] <src_infile>... [-o <srcML_outfile>]
       srcml [options] <srcML_infile> [-o <src_outfile>]

Translate C, C++, C#, and Java source code to the XML source-code
representation, or extract source code back out of it.

  -o, --output FILE       write output to FILE (default stdout)
  -j, --jobs N            number of parser threads
  -l, --language LANG     set the source language
  -f, --filename NAME     set the filename attribute
  -s, --src-version V     set the version attribute
      --url URL           set the url attribute
      --tabs N            set the tab stop
      --register-ext E=L  map filename extension E to language L
      --xmlns:PREFIX URI  register an XML namespace
      --archive           write a full archive even for one input
      --position          include position markup
      --hash, --no-hash   toggle per-unit content hashes
      --unstable-order    write units in completion order
  -z, --compress          gzip the output
  -i, --info              display document metadata
`)
}
