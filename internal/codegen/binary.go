package codegen

import (
	"encoding/base64"
	"strings"
)

const base64Decoder = `const base64codes = [62,0,0,0,63,52,53,54,55,56,57,58,59,60,61,0,0,0,0,0,0,0,0,1,2,3,4,5,6,7,8,9,10,11,12,13,14,15,16,17,18,19,20,21,22,23,24,25,0,0,0,0,0,0,26,27,28,29,30,31,32,33,34,35,36,37,38,39,40,41,42,43,44,45,46,47,48,49,50,51];

function getBase64Code(charCode) {
    return base64codes[charCode - 43];
}

function base64_decode(str) {
    let missingOctets = str.endsWith("==") ? 2 : str.endsWith("=") ? 1 : 0;
    let n = str.length;
    let result = new Uint8Array(3 * (n / 4));
    let buffer;

    for (let i = 0, j = 0; i < n; i += 4, j += 3) {
        buffer =
            getBase64Code(str.charCodeAt(i)) << 18 |
            getBase64Code(str.charCodeAt(i + 1)) << 12 |
            getBase64Code(str.charCodeAt(i + 2)) << 6 |
            getBase64Code(str.charCodeAt(i + 3));
        result[j] = buffer >> 16;
        result[j + 1] = (buffer >> 8) & 0xFF;
        result[j + 2] = buffer & 0xFF;
    }

    return result.subarray(0, result.length - missingOctets);
}
`

// Binary renders the module whose default export is the bytes of wasm.
func Binary(wasm []byte) *Output {
	var sb strings.Builder
	sb.WriteString(base64Decoder)
	sb.WriteString("\nexport default base64_decode(")
	sb.WriteString(quote(base64.StdEncoding.EncodeToString(wasm)))
	sb.WriteString(");\n")
	return &Output{
		Code: sb.String(),
		Map:  SourceMap,
	}
}
