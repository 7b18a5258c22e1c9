package normalize

import (
	"strings"

	"github.com/opensource-finance/heron/internal/domain"
)

// systemFields are managed by the store and never written by clients.
var systemFields = map[string]struct{}{
	"Id": {}, "ID": {}, "id": {},
	"Author": {}, "AuthorId": {}, "Editor": {}, "EditorId": {},
	"Created": {}, "Modified": {},
	"owshiddenversion": {}, "OData__UIVersionString": {}, "_UIVersionString": {},
	"__metadata": {}, "odata.type": {}, "odata.id": {}, "odata.etag": {}, "odata.editLink": {},
	"ContentTypeId": {}, "GUID": {}, "FileSystemObjectType": {},
	"ServerRedirectedEmbedUri": {}, "ServerRedirectedEmbedUrl": {},
	"Attachments": {}, "ComplianceAssetId": {},
}

// IsSystemField reports whether name is store-managed.
func IsSystemField(name string) bool {
	if _, ok := systemFields[name]; ok {
		return true
	}
	return len(name) >= 2 && strings.HasPrefix(name, "_") && strings.HasSuffix(name, "_")
}

// Sanitize prepares a record for a write. It drops system fields and nil
// values, unwraps {results:[...]} wrappers, and flattens lookup objects
// carrying an Id into <name>Id. Sanitize(Sanitize(r)) == Sanitize(r).
func Sanitize(r domain.Record) domain.Record {
	out := make(domain.Record, len(r))
	for name, value := range r {
		if IsSystemField(name) || value == nil {
			continue
		}
		if obj, ok := value.(map[string]any); ok {
			if results, ok := obj["results"].([]any); ok {
				out[name] = results
				continue
			}
			if id, ok := obj["Id"]; ok && id != nil && !strings.HasSuffix(name, "Id") {
				continue // flattened below
			}
		}
		out[name] = value
	}

	for name, value := range r {
		obj, ok := value.(map[string]any)
		if !ok || IsSystemField(name) || strings.HasSuffix(name, "Id") {
			continue
		}
		if _, wrapped := obj["results"].([]any); wrapped {
			continue
		}
		id, ok := obj["Id"]
		if !ok || id == nil {
			continue
		}
		flat := name + "Id"
		if _, explicit := out[flat]; explicit {
			continue
		}
		if n := domain.PositiveInt(id); n > 0 {
			out[flat] = n
		} else {
			out[flat] = id
		}
	}
	return out
}
