package registry

import (
	"bytes"
	"encoding/binary"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/appkit/amd/internal/amerr"
	"github.com/appkit/amd/internal/app"
	"gopkg.in/yaml.v2"
)

// dbMagic and dbVersion describe the binary application database format
// (spec §6: "Application database file"): a fixed 8-byte magic, a u32
// version, a u32 entry count, then N length-prefixed records.
var dbMagic = [8]byte{'A', 'M', 'A', 'P', 'P', 'D', 'B', '\n'}

const dbVersion uint32 = 1

// writeDB persists apps to path atomically: write to a sibling file,
// fsync, rename — the exact discipline runtime/storage.go and
// utils/config.go use for on-disk artifacts in the teacher.
func writeDB(path string, apps []*app.Application) error {
	var buf bytes.Buffer
	buf.Write(dbMagic[:])

	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], dbVersion)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(apps)))
	buf.Write(hdr[:])

	for _, a := range apps {
		rec, err := encodeRecord(a)
		if err != nil {
			return err
		}
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(rec)))
		buf.Write(lenBuf[:])
		buf.Write(rec)
	}

	sibling := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return amerr.System.Wrap(err, "creating registry directory")
	}

	f, err := os.OpenFile(sibling, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return amerr.System.Wrap(err, "opening sibling registry file")
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return amerr.System.Wrap(err, "writing sibling registry file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return amerr.System.Wrap(err, "fsync sibling registry file")
	}
	if err := f.Close(); err != nil {
		return amerr.System.Wrap(err, "closing sibling registry file")
	}

	if err := os.Rename(sibling, path); err != nil {
		return amerr.System.Wrap(err, "renaming registry file into place")
	}
	return nil
}

// openDB reads a binary registry file. A missing file, bad magic, or
// unsupported version is reported as errNeedsRecreate so the caller can
// fall back to a directory scan (spec §4.2: "open(path) ... yields
// either a valid registry or a recoverable invalid/absent condition
// that triggers recreate").
var errNeedsRecreate = amerr.Parse.New("registry database is missing or invalid")

func openDB(path string) ([]*app.Application, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errNeedsRecreate
		}
		return nil, amerr.System.Wrap(err, "reading registry file")
	}

	if len(raw) < 16 || !bytes.Equal(raw[:8], dbMagic[:]) {
		return nil, errNeedsRecreate
	}

	version := binary.BigEndian.Uint32(raw[8:12])
	if version != dbVersion {
		return nil, errNeedsRecreate
	}

	count := binary.BigEndian.Uint32(raw[12:16])
	rest := raw[16:]

	apps := make([]*app.Application, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(rest) < 4 {
			return nil, errNeedsRecreate
		}
		recLen := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint32(len(rest)) < recLen {
			return nil, errNeedsRecreate
		}
		rec := rest[:recLen]
		rest = rest[recLen:]

		a, err := decodeRecord(rec)
		if err != nil {
			return nil, errNeedsRecreate
		}
		apps = append(apps, a)
	}

	return apps, nil
}

// record is the length-prefixed-field encoding of one Application, in
// declaration order, as required by spec §6.
type record struct {
	ID                           string
	CodeDir                      string
	RuntimeName                  string
	RuntimeParametersYAML        []byte
	SupportsApplicationInterface bool
	IsBuiltIn                    bool
	NonAliasedID                 string
	Installed                    bool
	Report                       reportYAML
}

func encodeRecord(a *app.Application) ([]byte, error) {
	paramsYAML, err := yaml.Marshal(a.RuntimeParameters)
	if err != nil {
		return nil, amerr.System.Wrap(err, "marshaling runtime parameters")
	}

	r := record{
		ID:                           a.ID,
		CodeDir:                      a.CodeDir,
		RuntimeName:                  a.RuntimeName,
		RuntimeParametersYAML:        paramsYAML,
		SupportsApplicationInterface: a.SupportsApplicationInterface,
		IsBuiltIn:                    a.IsBuiltIn,
	}
	if a.NonAliased != nil {
		r.NonAliasedID = a.NonAliased.ID
	}
	if a.InstallationReport != nil {
		r.Installed = true
		ir := a.InstallationReport
		r.Report = reportYAML{
			ApplicationID:          ir.ApplicationID,
			InstallationLocationID: ir.InstallationLocationID,
			DiskSpaceUsed:          ir.DiskSpaceUsed,
			Digest:                 ir.Digest,
			SignerChain:            ir.SignerChain,
			UIDMapping:             ir.UIDMapping,
		}
	}

	var buf bytes.Buffer
	writeString(&buf, r.ID)
	writeString(&buf, r.CodeDir)
	writeString(&buf, r.RuntimeName)
	writeBytes(&buf, r.RuntimeParametersYAML)
	writeBool(&buf, r.SupportsApplicationInterface)
	writeBool(&buf, r.IsBuiltIn)
	writeString(&buf, r.NonAliasedID)
	writeBool(&buf, r.Installed)
	if r.Installed {
		writeString(&buf, r.Report.ApplicationID)
		writeString(&buf, r.Report.InstallationLocationID)
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(r.Report.DiskSpaceUsed))
		buf.Write(n[:])
		writeString(&buf, r.Report.Digest)
		chain, err := yaml.Marshal(r.Report.SignerChain)
		if err != nil {
			return nil, amerr.System.Wrap(err, "marshaling signer chain")
		}
		writeBytes(&buf, chain)
		mapping, err := yaml.Marshal(r.Report.UIDMapping)
		if err != nil {
			return nil, amerr.System.Wrap(err, "marshaling uid mapping")
		}
		writeBytes(&buf, mapping)
	}

	return buf.Bytes(), nil
}

func decodeRecord(b []byte) (*app.Application, error) {
	r := bytes.NewReader(b)

	id, err := readString(r)
	if err != nil {
		return nil, err
	}
	codeDir, err := readString(r)
	if err != nil {
		return nil, err
	}
	runtimeName, err := readString(r)
	if err != nil {
		return nil, err
	}
	paramsYAML, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	supportsIface, err := readBool(r)
	if err != nil {
		return nil, err
	}
	isBuiltIn, err := readBool(r)
	if err != nil {
		return nil, err
	}
	nonAliasedID, err := readString(r)
	if err != nil {
		return nil, err
	}
	installed, err := readBool(r)
	if err != nil {
		return nil, err
	}

	var params map[string]interface{}
	if err := yaml.Unmarshal(paramsYAML, &params); err != nil {
		return nil, amerr.Parse.Wrap(err, "unmarshaling runtime parameters")
	}

	a := &app.Application{
		ID:                           id,
		CodeDir:                      codeDir,
		RuntimeName:                  runtimeName,
		RuntimeParameters:            params,
		SupportsApplicationInterface: supportsIface,
		IsBuiltIn:                    isBuiltIn,
	}

	if nonAliasedID != "" {
		a.NonAliased = &app.Application{ID: nonAliasedID}
	}

	if installed {
		appID, err := readString(r)
		if err != nil {
			return nil, err
		}
		locID, err := readString(r)
		if err != nil {
			return nil, err
		}
		var n [8]byte
		if _, err := io.ReadFull(r, n[:]); err != nil {
			return nil, amerr.Parse.Wrap(err, "reading diskSpaceUsed")
		}
		diskSpace := int64(binary.BigEndian.Uint64(n[:]))
		digest, err := readString(r)
		if err != nil {
			return nil, err
		}
		chainYAML, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		var chain []string
		if err := yaml.Unmarshal(chainYAML, &chain); err != nil {
			return nil, amerr.Parse.Wrap(err, "unmarshaling signer chain")
		}
		mappingYAML, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		var mapping map[string]int
		if err := yaml.Unmarshal(mappingYAML, &mapping); err != nil {
			return nil, amerr.Parse.Wrap(err, "unmarshaling uid mapping")
		}

		a.InstallationReport = &app.InstallationReport{
			ApplicationID:          appID,
			InstallationLocationID: locID,
			DiskSpaceUsed:          diskSpace,
			Digest:                 digest,
			SignerChain:            chain,
			UIDMapping:             mapping,
		}
	}

	return a, nil
}

func writeString(buf *bytes.Buffer, s string) { writeBytes(buf, []byte(s)) }

func writeBytes(buf *bytes.Buffer, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	buf.Write(n[:])
	buf.Write(b)
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var n [4]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return nil, amerr.Parse.Wrap(err, "reading length prefix")
	}
	l := binary.BigEndian.Uint32(n[:])
	b := make([]byte, l)
	if l > 0 {
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, amerr.Parse.Wrap(err, "reading record field")
		}
	}
	return b, nil
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, amerr.Parse.Wrap(err, "reading bool field")
	}
	return b != 0, nil
}
