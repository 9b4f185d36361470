package storage

import "strings"

// RepoPathToKey converts the repository's backslash-delimited folder
// path into an object key. Paths arrive like
//
//	\0 CS Records Management\CONTRACTS\Contract 36651 Volume 1
//
// so the leading empty segment is stripped and the separators become
// forward slashes.
func RepoPathToKey(path string) string {
	segs := strings.Split(path, "\\")
	for len(segs) > 0 && segs[0] == "" {
		segs = segs[1:]
	}
	return strings.Join(segs, "/")
}

// PDFKey derives the object key for a document's PDF from its folder
// path and file name.
func PDFKey(repoPath, fileName string) string {
	base := RepoPathToKey(repoPath)
	if base == "" {
		return "documents/pdf_files/" + fileName
	}
	return "documents/pdf_files/" + base + "/" + fileName
}
