package backbone

import "testing"

func TestValidateMetadata(t *testing.T) {
	tests := []struct {
		name    string
		meta    ExtractorMetadata
		wantErr bool
	}{
		{
			name: "pooled output",
			meta: ExtractorMetadata{
				InputShape:  []int64{1, 3, 224, 224},
				OutputShape: []int64{1, 1280},
				ImageSize:   224,
			},
		},
		{
			name: "spatial output",
			meta: ExtractorMetadata{
				InputShape:  []int64{1, 3, 299, 299},
				OutputShape: []int64{1, 2048, 8, 8},
				ImageSize:   299,
			},
		},
		{
			name: "input batch dimension not 1",
			meta: ExtractorMetadata{
				InputShape:  []int64{8, 3, 224, 224},
				OutputShape: []int64{1, 1280},
				ImageSize:   224,
			},
			wantErr: true,
		},
		{
			name: "output batch dimension not 1",
			meta: ExtractorMetadata{
				InputShape:  []int64{1, 3, 224, 224},
				OutputShape: []int64{8, 1280},
				ImageSize:   224,
			},
			wantErr: true,
		},
		{
			name: "spatial output batch dimension not 1",
			meta: ExtractorMetadata{
				InputShape:  []int64{1, 3, 299, 299},
				OutputShape: []int64{4, 2048, 8, 8},
				ImageSize:   299,
			},
			wantErr: true,
		},
		{
			name: "input size mismatch",
			meta: ExtractorMetadata{
				InputShape:  []int64{1, 3, 224, 224},
				OutputShape: []int64{1, 1280},
				ImageSize:   299,
			},
			wantErr: true,
		},
		{
			name: "wrong channel count",
			meta: ExtractorMetadata{
				InputShape:  []int64{1, 1, 224, 224},
				OutputShape: []int64{1, 1280},
				ImageSize:   224,
			},
			wantErr: true,
		},
		{
			name: "non-square feature map",
			meta: ExtractorMetadata{
				InputShape:  []int64{1, 3, 224, 224},
				OutputShape: []int64{1, 1280, 7, 5},
				ImageSize:   224,
			},
			wantErr: true,
		},
		{
			name: "missing image size",
			meta: ExtractorMetadata{
				InputShape:  []int64{1, 3, 224, 224},
				OutputShape: []int64{1, 1280},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateMetadata(tt.meta)
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
