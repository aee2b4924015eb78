package registry

import (
	"bytes"
	"io/ioutil"

	"github.com/appkit/amd/internal/amerr"
	"gopkg.in/yaml.v2"
)

// ManifestHeader is the first YAML document in an info.yaml file (spec
// §6: "Manifest file info.yaml").
type ManifestHeader struct {
	FormatType    string `yaml:"formatType"`
	FormatVersion int    `yaml:"formatVersion"`
}

// ManifestBody is the second YAML document: the actual application
// fields.
type ManifestBody struct {
	ID                           string                 `yaml:"id"`
	CodeDir                      string                 `yaml:"codeDir"`
	RuntimeName                  string                 `yaml:"runtimeName"`
	RuntimeParameters            map[string]interface{} `yaml:"runtimeParameters"`
	SupportsApplicationInterface bool                   `yaml:"supportsApplicationInterface"`

	// SignerChain is only populated (and only meaningful) on a staged
	// package's embedded info.yaml, for the installer's CA-chain
	// verification; an on-disk application's manifest never carries it.
	SignerChain []string `yaml:"signerChain"`
}

// allowedFormatTypes and expectedFormatVersion are fixed in this
// package; callers cannot supply their own allow-list or version. Only
// the two-document envelope and version gate belong to the registry
// (spec §2's note that the manifest parser is an out-of-scope library
// boundary).
const expectedFormatVersion = 1

var allowedFormatTypes = map[string]bool{
	"am-application": true,
}

// LoadManifest parses a two-document YAML stream: a header document
// carrying formatType/formatVersion, and a body document carrying the
// application fields. A formatVersion that doesn't match exactly is
// rejected with Parse, mirroring spec §8's "off by one -> Parse"
// boundary case. Exported so the installer can parse a staged package's
// embedded info.yaml with the same two-document envelope rather than a
// single-document yaml.Unmarshal that silently only reads the header.
func LoadManifest(path string) (*ManifestBody, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, amerr.IO.Wrap(err, "reading "+path)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))

	var header ManifestHeader
	if err := dec.Decode(&header); err != nil {
		return nil, amerr.Parse.Wrap(err, "decoding manifest header of "+path)
	}

	if !allowedFormatTypes[header.FormatType] {
		return nil, amerr.Parse.New("unknown formatType " + header.FormatType + " in " + path)
	}
	if header.FormatVersion != expectedFormatVersion {
		return nil, amerr.Parse.New("unsupported formatVersion in " + path)
	}

	var body ManifestBody
	if err := dec.Decode(&body); err != nil {
		return nil, amerr.Parse.Wrap(err, "decoding manifest body of "+path)
	}

	return &body, nil
}

func loadInstallationReport(path string) (*reportYAML, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, amerr.IO.Wrap(err, "reading "+path)
	}

	var r reportYAML
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return nil, amerr.Parse.Wrap(err, "decoding installation report "+path)
	}
	return &r, nil
}

// reportYAML mirrors app.InstallationReport's YAML shape; kept distinct
// so the registry package doesn't need to import app for its yaml tags.
type reportYAML struct {
	ApplicationID          string         `yaml:"applicationId"`
	InstallationLocationID string         `yaml:"installationLocationId"`
	DiskSpaceUsed          int64          `yaml:"diskSpaceUsed"`
	Digest                 string         `yaml:"digest"`
	SignerChain            []string       `yaml:"signerChain"`
	UIDMapping             map[string]int `yaml:"uidMapping,omitempty"`
}
